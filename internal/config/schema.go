package config

import "time"

// Config represents the YAML settings for the bridge server
type Config struct {
	Version      string   `yaml:"version"`
	Metadata     Metadata `yaml:"metadata"`
	ServicesFile string   `yaml:"services_file"`
	Settings     Settings `yaml:"settings"`
	Logging      Tool     `yaml:"logging_tool"`
	Postgres     Tool     `yaml:"postgres_tool"`
	Security     Security `yaml:"security"`
}

// Metadata describes the server as announced to MCP clients
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// Settings contains process-wide execution settings
type Settings struct {
	Shell   string        `yaml:"shell"`
	Timeout time.Duration `yaml:"timeout"`
}

// Tool configures one external CLI
type Tool struct {
	Enabled      *bool         `yaml:"enabled"`
	Command      string        `yaml:"command"`
	Timeout      time.Duration `yaml:"timeout"`
	BenignStderr string        `yaml:"benign_stderr"`
}

// IsEnabled reports whether the tool is switched on; unset means enabled.
func (t Tool) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Security contains security settings
type Security struct {
	BlockedCommands []string `yaml:"blocked_commands"`
	MaxOutputSize   int64    `yaml:"max_output_size"`
}
