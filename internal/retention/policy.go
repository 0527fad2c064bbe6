// Package retention enforces how long documents, files and audit entries are kept.
package retention

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy maps a purpose code to the number of hours a job may be kept.
type Policy struct {
	DefaultHours     int            `yaml:"default_hours"`
	Purposes         map[string]int `yaml:"purposes"`
	AuditLogDays     int            `yaml:"audit_log_days"`
	OrphanGraceHours int            `yaml:"orphan_grace_hours"`
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultHours: 30 * 24,
		Purposes: map[string]int{
			"System Testing": 24,
			"General":        30 * 24,
			"Financial":      365 * 24,
			"Legal":          7 * 365 * 24,
			"Medical":        10 * 365 * 24,
		},
		AuditLogDays:     365,
		OrphanGraceHours: 24,
	}
}

// LoadPolicy returns the default policy overlaid with the YAML file at path.
// An empty path yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read retention policy: %w", err)
	}

	var override Policy
	if err := yaml.Unmarshal(b, &override); err != nil {
		return p, fmt.Errorf("parse retention policy: %w", err)
	}
	if override.DefaultHours > 0 {
		p.DefaultHours = override.DefaultHours
	}
	for k, v := range override.Purposes {
		if v <= 0 {
			return p, fmt.Errorf("retention policy: purpose %q must have positive hours", k)
		}
		p.Purposes[k] = v
	}
	if override.AuditLogDays > 0 {
		p.AuditLogDays = override.AuditLogDays
	}
	if override.OrphanGraceHours > 0 {
		p.OrphanGraceHours = override.OrphanGraceHours
	}
	return p, nil
}

// Hours returns the retention for purpose, falling back to DefaultHours.
func (p Policy) Hours(purpose string) int {
	if h, ok := p.Purposes[purpose]; ok {
		return h
	}
	return p.DefaultHours
}

func (p Policy) ExpiresAt(createdAt time.Time, purpose string) time.Time {
	return createdAt.Add(time.Duration(p.Hours(purpose)) * time.Hour)
}

// Expired reports whether a job created at createdAt is past its retention.
func (p Policy) Expired(createdAt, now time.Time, purpose string) bool {
	return now.Sub(createdAt) > time.Duration(p.Hours(purpose))*time.Hour
}

func (p Policy) AuditCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.AuditLogDays)
}

func (p Policy) OrphanGrace() time.Duration {
	return time.Duration(p.OrphanGraceHours) * time.Hour
}
