package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/sonde-czml/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// ParseStyleRules parses a YAML file of per-vehicle track styles.
//
//	default:
//	  width: 6
//	vehicles:
//	  - pattern: "RS_S*"
//	    color: [0, 0, 255, 255]
func ParseStyleRules(filePath string) (*models.StyleRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseStyleRulesFromReader(file)
}

// ParseStyleRulesFromReader parses style rules from an io.Reader.
func ParseStyleRulesFromReader(r io.Reader) (*models.StyleRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rules models.StyleRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&rules); err != nil {
		return nil, fmt.Errorf("invalid style rules: %w", err)
	}

	return &rules, nil
}
