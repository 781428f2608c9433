package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidateFile checks if a file exists
func ValidateFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	return nil
}

// IsCommandBlocked checks if a command is in the blocked list.
// Paths are compared by base name so /usr/bin/psql matches psql.
func IsCommandBlocked(command string, blockedCommands []string) bool {
	base := filepath.Base(command)
	for _, blocked := range blockedCommands {
		if command == blocked || base == blocked {
			return true
		}
	}
	return false
}
