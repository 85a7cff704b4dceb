package Config

import (
	"fmt"
	"os"
	"strings"

	"Pitstop/Models"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// LoadVenue parses the venue file. Comments and trailing commas are allowed.
func LoadVenue(path string) (*Models.Venue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue file: %w", err)
	}
	return ParseVenue(raw)
}

func ParseVenue(raw []byte) (*Models.Venue, error) {
	var venue Models.Venue
	if err := json5.Unmarshal(raw, &venue); err != nil {
		return nil, fmt.Errorf("parse venue file: %w", err)
	}
	if strings.TrimSpace(venue.TimeZone) == "" {
		return nil, fmt.Errorf("venue %q has no timezone", venue.Name)
	}

	seen := map[string]bool{}
	for _, z := range venue.Zones {
		for _, w := range z.Workstations {
			if seen[w.Name] {
				return nil, fmt.Errorf("workstation %q listed twice", w.Name)
			}
			seen[w.Name] = true
		}
	}
	for _, eq := range venue.Equipment {
		if eq.Workstation != "" && !seen[eq.Workstation] {
			return nil, fmt.Errorf("equipment %q placed at unknown workstation %q", eq.Name, eq.Workstation)
		}
	}
	return &venue, nil
}
