package executor

import (
	"fmt"
	"strings"

	"github.com/charignon/cmdbridge/internal/config"
)

// Sandbox checks a built command against the security policy before it runs
type Sandbox struct {
	security config.Security
}

// NewSandbox creates a new sandbox
func NewSandbox(security config.Security) *Sandbox {
	return &Sandbox{security: security}
}

// ValidateCommand validates a command against security policy
func (s *Sandbox) ValidateCommand(spec *CommandSpec) error {
	if spec == nil || spec.Executable == "" {
		return fmt.Errorf("empty command")
	}

	if config.IsCommandBlocked(spec.Executable, s.security.BlockedCommands) {
		return fmt.Errorf("command '%s' is blocked", spec.Executable)
	}

	if spec.IsShell() && len(spec.Args) > 0 {
		return fmt.Errorf("command has both a shell line and arguments")
	}

	parts := append([]string{spec.Executable, spec.ShellLine}, spec.Args...)
	for _, part := range parts {
		if strings.ContainsRune(part, 0) {
			return ErrNullByte
		}
	}

	return nil
}
