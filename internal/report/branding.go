package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Branding is the company identity printed on every page header.
type Branding struct {
	CompanyName string `yaml:"company_name"`
	ReportTitle string `yaml:"report_title"`
	Primary     Color  `yaml:"primary"`
	Accent      Color  `yaml:"accent"`
	Footer      string `yaml:"footer"`
}

// Color decodes "#RRGGBB" values.
type Color struct{ RGB }

func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	rgb, err := parseHex(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	c.RGB = rgb
	return nil
}

func (c Color) MarshalYAML() (any, error) {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B), nil
}

func parseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("color %q must look like #RRGGBB", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("color %q must look like #RRGGBB", s)
	}
	return RGB{R: int(v >> 16 & 0xFF), G: int(v >> 8 & 0xFF), B: int(v & 0xFF)}, nil
}

func DefaultBranding() Branding {
	return Branding{
		CompanyName: "Cronograma",
		ReportTitle: "Programa de obra y flujo financiero",
		Primary:     Color{RGB{R: 31, G: 58, B: 95}},
		Accent:      Color{RGB{R: 230, G: 145, B: 30}},
	}
}

// LoadBranding reads a YAML profile; missing fields keep their defaults.
func LoadBranding(path string) (Branding, error) {
	b := DefaultBranding()
	if path == "" {
		return b, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("read branding: %w", err)
	}
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("parse branding: %w", err)
	}
	return b, nil
}
