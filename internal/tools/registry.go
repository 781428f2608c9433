// Package tools exposes the bridge operations as named tools with declared
// parameters. Every failure leaves a tool as an error-flagged text result.
package tools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charignon/cmdbridge/internal/executor"
	"github.com/rs/zerolog/log"
)

// Parameter types understood by the registry
const (
	TypeString  = "string"
	TypeInteger = "integer"
)

// Runner executes a built command
type Runner interface {
	Run(ctx context.Context, spec *executor.CommandSpec) (*executor.Outcome, error)
}

// Param declares one tool argument
type Param struct {
	Name        string
	Description string
	Type        string
	Required    bool
	Default     interface{}
	Enum        []string
}

// Result is the text payload handed back to the caller
type Result struct {
	Text    string
	IsError bool
}

// Text builds a success result
func Text(text string) Result {
	return Result{Text: text}
}

// Errorf builds an error-flagged result
func Errorf(format string, args ...interface{}) Result {
	return Result{Text: fmt.Sprintf(format, args...), IsError: true}
}

// Handler implements a tool on validated arguments
type Handler func(ctx context.Context, args Arguments) Result

// Tool is one callable operation
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Registry holds tools in registration order
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Tool)}
}

// Register adds tools; a later tool with the same name replaces the earlier one.
func (r *Registry) Register(tools ...*Tool) {
	for _, t := range tools {
		if _, exists := r.byName[t.Name]; exists {
			for i := range r.tools {
				if r.tools[i].Name == t.Name {
					r.tools[i] = t
				}
			}
		} else {
			r.tools = append(r.tools, t)
		}
		r.byName[t.Name] = t
	}
}

// List returns the tools in registration order
func (r *Registry) List() []*Tool {
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Get looks up a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// ErrUnknownTool is returned by Call for names that were never registered
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("Tool not found: %s", e.Name)
}

// Call validates raw arguments against the tool's params and runs it.
// Only an unknown tool name produces an error; everything else is a Result.
func (r *Registry) Call(ctx context.Context, name string, raw map[string]interface{}) (Result, error) {
	tool, ok := r.byName[name]
	if !ok {
		return Result{}, &ErrUnknownTool{Name: name}
	}

	args, err := bind(tool.Params, raw)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Rejected tool arguments")
		return Errorf("Invalid arguments for %s: %v", name, err), nil
	}

	start := time.Now()
	result := tool.Handler(ctx, args)

	event := log.Info()
	if result.IsError {
		event = log.Warn()
	}
	event.Str("tool", name).Dur("duration", time.Since(start)).Bool("isError", result.IsError).Msg("Tool call finished")

	return result, nil
}

// Arguments are validated tool arguments with defaults applied
type Arguments map[string]interface{}

// String returns a string argument, or "" when absent
func (a Arguments) String(name string) string {
	if v, ok := a[name].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer argument, or nil when absent
func (a Arguments) Int(name string) *int {
	if v, ok := a[name].(int); ok {
		return &v
	}
	return nil
}

// bind checks raw values against params, converts them, and fills defaults
func bind(params []Param, raw map[string]interface{}) (Arguments, error) {
	args := make(Arguments, len(params))

	for _, p := range params {
		value, exists := raw[p.Name]
		if !exists || value == nil {
			if p.Default != nil {
				args[p.Name] = p.Default
			} else if p.Required {
				return nil, fmt.Errorf("required argument %s not provided", p.Name)
			}
			continue
		}

		converted, err := convert(p, value)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		args[p.Name] = converted
	}

	return args, nil
}

func convert(p Param, value interface{}) (interface{}, error) {
	switch p.Type {
	case TypeInteger:
		var i int
		switch v := value.(type) {
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			i = int(v)
		case int:
			i = v
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid integer: %s", v)
			}
			i = n
		default:
			return nil, fmt.Errorf("expected integer, got %T", value)
		}
		return i, nil

	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return nil, fmt.Errorf("must be one of %v, got %q", p.Enum, s)
		}
		return s, nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
