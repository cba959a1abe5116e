package filter

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/sonde-czml/backend/internal/models"
)

// gpxFile mirrors the subset of GPX 1.1 needed to bound a track.
type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat       float64  `xml:"lat,attr"`
	Lon       float64  `xml:"lon,attr"`
	Elevation *float64 `xml:"ele"`
}

// VolumeFromGPXFile derives a bounding volume from the tracks of a GPX file.
func VolumeFromGPXFile(path string) (models.BoundingVolume, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.BoundingVolume{}, err
	}
	defer f.Close()

	return VolumeFromGPX(f)
}

// VolumeFromGPX returns the smallest volume enclosing every track point.
// Latitude and longitude keep the global defaults when the file holds no
// points. The elevation range starts inverted at 100000..-100000 and is
// widened by every point that carries an elevation.
func VolumeFromGPX(r io.Reader) (models.BoundingVolume, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return models.BoundingVolume{}, fmt.Errorf("parsing gpx: %w", err)
	}

	vol := models.DefaultBoundingVolume()
	vol.MinElevation = 100000
	vol.MaxElevation = -100000

	seen := false
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, pt := range seg.Points {
				if !seen {
					vol.MinLat, vol.MaxLat = pt.Lat, pt.Lat
					vol.MinLon, vol.MaxLon = pt.Lon, pt.Lon
					seen = true
				}
				vol.MinLat = min(vol.MinLat, pt.Lat)
				vol.MaxLat = max(vol.MaxLat, pt.Lat)
				vol.MinLon = min(vol.MinLon, pt.Lon)
				vol.MaxLon = max(vol.MaxLon, pt.Lon)
				if pt.Elevation != nil {
					vol.MinElevation = min(vol.MinElevation, *pt.Elevation)
					vol.MaxElevation = max(vol.MaxElevation, *pt.Elevation)
				}
			}
		}
	}
	return vol, nil
}
