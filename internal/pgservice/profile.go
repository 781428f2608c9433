// Package pgservice reads PostgreSQL connection service files
// (pg_service.conf) into named connection profiles.
package pgservice

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	sectionPattern  = regexp.MustCompile(`^\[([^\]]+)\]$`)
	propertyPattern = regexp.MustCompile(`^([^=]+)=(.*)$`)
)

// ServiceProfile is one named connection target from the service file.
// Optional fields are nil when the file does not set them.
type ServiceProfile struct {
	Name   string
	Host   *string
	Port   *string
	DBName *string
	User   *string
}

// DisplayHost returns the host, or localhost when unset.
func (p ServiceProfile) DisplayHost() string { return valueOr(p.Host, "localhost") }

// DisplayPort returns the port, or 5432 when unset.
func (p ServiceProfile) DisplayPort() string { return valueOr(p.Port, "5432") }

// DisplayDBName returns the database name, or the service name when unset.
func (p ServiceProfile) DisplayDBName() string { return valueOr(p.DBName, p.Name) }

// DisplayUser returns the user, or "default" when unset.
func (p ServiceProfile) DisplayUser() string { return valueOr(p.User, "default") }

// String renders the profile as name: host:port/dbname (user: user).
func (p ServiceProfile) String() string {
	return fmt.Sprintf("%s: %s:%s/%s (user: %s)",
		p.Name, p.DisplayHost(), p.DisplayPort(), p.DisplayDBName(), p.DisplayUser())
}

// Parse reads service file text into profiles in section order.
// It never fails: lines it cannot interpret are skipped.
func Parse(text string) []ServiceProfile {
	var (
		profiles []ServiceProfile
		current  *ServiceProfile
	)

	finalize := func() {
		if current != nil && current.Name != "" {
			profiles = append(profiles, *current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if m := sectionPattern.FindStringSubmatch(trimmed); m != nil {
			finalize()
			current = &ServiceProfile{Name: m[1]}
			continue
		}

		m := propertyPattern.FindStringSubmatch(trimmed)
		if m == nil || current == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch strings.TrimSpace(m[1]) {
		case "host":
			current.Host = &value
		case "port":
			current.Port = &value
		case "dbname":
			current.DBName = &value
		case "user":
			current.User = &value
		}
	}
	finalize()

	return profiles
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
