// Package useragent classifies user-agent strings into coarse browser,
// device and OS buckets by best-effort substring matching. It is not a
// device-detection taxonomy; anything unrecognized is "Unknown".
package useragent

import (
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Unknown is the fallback bucket for every dimension.
const Unknown = "Unknown"

// Device buckets.
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
)

//go:embed rules.yml
var rulesYAML []byte

// Classification is the coarse result for one user-agent string.
type Classification struct {
	Browser string
	OS      string
	Device  string
	Bot     bool
}

type rule struct {
	Name     string   `yaml:"name"`
	Contains []string `yaml:"contains"`
}

type ruleSet struct {
	Browsers         []rule `yaml:"browsers"`
	OperatingSystems []rule `yaml:"operating_systems"`
	Devices          []rule `yaml:"devices"`
	Bots             []rule `yaml:"bots"`
}

var (
	rules    ruleSet
	loadOnce sync.Once
	loadErr  error
)

func loadRules() {
	loadOnce.Do(func() {
		loadErr = yaml.Unmarshal(rulesYAML, &rules)
	})
}

// Classify buckets a user-agent string. An empty or unmatched string yields
// Unknown for browser and OS; the device falls back to Desktop for
// non-empty, non-bot agents since desktop UAs carry no positive marker.
func Classify(userAgent string) Classification {
	loadRules()

	result := Classification{Browser: Unknown, OS: Unknown, Device: Unknown}
	if loadErr != nil || strings.TrimSpace(userAgent) == "" {
		return result
	}

	lower := strings.ToLower(userAgent)

	result.Bot = matchRules(lower, rules.Bots) != ""
	result.Browser = fallback(matchRules(lower, rules.Browsers), Unknown)
	result.OS = fallback(matchRules(lower, rules.OperatingSystems), Unknown)

	if device := matchRules(lower, rules.Devices); device != "" {
		result.Device = device
	} else if !result.Bot {
		result.Device = DeviceDesktop
	}
	return result
}

// matchRules returns the name of the first rule with a matching substring,
// or "" when nothing matches. Rule order is significance order: Edge before
// Chrome, iPad before iPhone, and so on.
func matchRules(lowerUA string, candidates []rule) string {
	for _, r := range candidates {
		for _, needle := range r.Contains {
			if strings.Contains(lowerUA, needle) {
				return r.Name
			}
		}
	}
	return ""
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
