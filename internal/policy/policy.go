// Package policy decides which mentions may trigger agents.
package policy

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type RateLimit struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	MaxPerIssue int  `yaml:"max_per_issue" json:"max_per_issue"`
	MaxPerHour  int  `yaml:"max_per_hour" json:"max_per_hour"`
}

type Policy struct {
	Blacklist []string  `yaml:"blacklist" json:"blacklist"`
	RateLimit RateLimit `yaml:"rate_limit" json:"rate_limit"`
}

func DefaultPolicy() Policy {
	return Policy{
		Blacklist: []string{},
		RateLimit: RateLimit{
			Enabled:     false,
			MaxPerIssue: 10,
			MaxPerHour:  5,
		},
	}
}

type policyFile struct {
	MentionPolicy *Policy `yaml:"mention_policy"`
}

// LoadPolicy reads the mention_policy section of path. A missing or malformed
// file yields DefaultPolicy; keys absent from the file keep their defaults.
func LoadPolicy(path string) Policy {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("mention policy not found, using defaults", "path", path)
		} else {
			slog.Error("failed to read mention policy, using defaults", "path", path, "error", err)
		}
		return DefaultPolicy()
	}

	p := DefaultPolicy()
	doc := policyFile{MentionPolicy: &p}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Error("malformed mention policy, using defaults", "path", path, "error", err)
		return DefaultPolicy()
	}
	if doc.MentionPolicy == nil {
		slog.Warn("mention policy has no mention_policy section, using defaults", "path", path)
		return DefaultPolicy()
	}
	if p.Blacklist == nil {
		p.Blacklist = []string{}
	}
	slog.Info("loaded mention policy", "blacklist", p.Blacklist, "rate_limit", p.RateLimit.Enabled)
	return p
}
