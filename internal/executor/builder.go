package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/charignon/cmdbridge/internal/config"
	"github.com/charignon/cmdbridge/internal/query"
)

// DefaultSchema is used when describe or list calls omit the schema.
const DefaultSchema = "public"

// DefaultLogFormat is the gcloud output format used when none is requested.
const DefaultLogFormat = "json"

var (
	// service names sit unquoted in the psql shell line
	serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]+$`)
	shellWordPattern   = regexp.MustCompile(`^[A-Za-z0-9_./@:+-]+$`)
)

// psql output flags keyed by requested format
var formatFlags = map[string]string{
	"table": "",
	"csv":   "--csv",
	"json":  "--json",
	"html":  "--html",
}

// CommandSpec is one fully built external invocation. Exactly one of Args
// or ShellLine is set.
type CommandSpec struct {
	Tool         string
	Executable   string
	Args         []string
	ShellLine    string
	BenignStderr string
	Timeout      time.Duration
}

// IsShell reports whether the command must run through a shell.
func (s *CommandSpec) IsShell() bool {
	return s.ShellLine != ""
}

// String renders the invocation for logs.
func (s *CommandSpec) String() string {
	if s.IsShell() {
		return s.ShellLine
	}
	return strings.TrimSpace(s.Executable + " " + strings.Join(s.Args, " "))
}

// LogReadParams are the inputs of a gcloud logging read call
type LogReadParams struct {
	Filter  string
	Limit   *int
	Project string
	Format  string
}

// CommandBuilder builds gcloud and psql invocations
type CommandBuilder struct {
	logging  config.Tool
	postgres config.Tool
}

// NewCommandBuilder creates a builder for the configured tools
func NewCommandBuilder(cfg *config.Config) *CommandBuilder {
	return &CommandBuilder{
		logging:  cfg.Logging,
		postgres: cfg.Postgres,
	}
}

// BuildLogRead builds the argument vector for gcloud logging read.
// The filter is always passed as the first positional argument, empty when unset.
func (b *CommandBuilder) BuildLogRead(p LogReadParams) (*CommandSpec, error) {
	args := []string{"logging", "read", p.Filter}

	// zero means no limit, anything else is handed to gcloud as given
	if p.Limit != nil && *p.Limit != 0 {
		args = append(args, "--limit="+strconv.Itoa(*p.Limit))
	}

	if p.Project != "" {
		args = append(args, "--project="+p.Project)
	}

	format := p.Format
	if format == "" {
		format = DefaultLogFormat
	}
	args = append(args, "--format="+format)

	return &CommandSpec{
		Tool:         "gcloud",
		Executable:   b.logging.Command,
		Args:         args,
		BenignStderr: b.logging.BenignStderr,
		Timeout:      b.logging.Timeout,
	}, nil
}

// BuildQuery builds the psql shell line for a caller supplied statement.
// The statement must pass the read-only check first.
func (b *CommandBuilder) BuildQuery(service, sql, format string) (*CommandSpec, error) {
	if err := query.Validate(sql); err != nil {
		return nil, err
	}
	return b.psql(service, FormatFlag(format), sql)
}

// BuildDescribeTable builds the psql shell line for \d+ schema.table.
func (b *CommandBuilder) BuildDescribeTable(service, schema, table string) (*CommandSpec, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if err := validateIdentifier("schema", schema); err != nil {
		return nil, err
	}
	if err := validateIdentifier("table", table); err != nil {
		return nil, err
	}
	return b.psql(service, "", fmt.Sprintf(`\d+ %s.%s`, schema, table))
}

// BuildListTables builds the psql shell line listing the tables of a schema.
func (b *CommandBuilder) BuildListTables(service, schema string) (*CommandSpec, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if err := validateIdentifier("schema", schema); err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(
		"SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = '%s' ORDER BY table_name;",
		strings.ReplaceAll(schema, "'", "''"))
	return b.psql(service, "", sql)
}

// psql assembles: <psql> service=<service> [flag] -c "<sql>"
func (b *CommandBuilder) psql(service, flag, sql string) (*CommandSpec, error) {
	if !serviceNamePattern.MatchString(service) {
		return nil, &query.ValidationError{Message: fmt.Sprintf("invalid service name %q", service)}
	}

	escaped, err := QuoteEscape(sql)
	if err != nil {
		return nil, &query.ValidationError{Message: fmt.Sprintf("invalid query: %v", err)}
	}

	executable, err := shellWord(b.postgres.Command)
	if err != nil {
		return nil, err
	}

	parts := []string{executable, "service=" + service}
	if flag != "" {
		parts = append(parts, flag)
	}
	parts = append(parts, "-c", `"`+escaped+`"`)

	return &CommandSpec{
		Tool:         "psql",
		Executable:   b.postgres.Command,
		ShellLine:    strings.Join(parts, " "),
		BenignStderr: b.postgres.BenignStderr,
		Timeout:      b.postgres.Timeout,
	}, nil
}

// FormatFlag maps a psql output format to its flag; unknown formats and
// "table" map to no flag.
func FormatFlag(format string) string {
	return formatFlags[format]
}

// QuoteEscape prepares a value for use inside a double-quoted shell word.
// Backslash, double quote, dollar and backtick keep a special meaning inside
// double quotes, so each gets a backslash. Null bytes cannot be passed at all.
func QuoteEscape(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", ErrNullByte
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\', '"', '$', '`':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// shellWord returns s unchanged when it is a plain word, otherwise double-quoted.
func shellWord(s string) (string, error) {
	if shellWordPattern.MatchString(s) {
		return s, nil
	}
	escaped, err := QuoteEscape(s)
	if err != nil {
		return "", err
	}
	return `"` + escaped + `"`, nil
}

// validateIdentifier rejects names that could end the psql meta-command
// argument or the SQL literal they are placed in.
func validateIdentifier(kind, name string) error {
	if name == "" {
		return &query.ValidationError{Message: fmt.Sprintf("%s name is required", kind)}
	}
	if strings.ContainsAny(name, "\\;\x00") || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return &query.ValidationError{Message: fmt.Sprintf("invalid %s name %q", kind, name)}
	}
	return nil
}
