package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TraceEvent represents a single trace event
type TraceEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Direction string                 `json:"direction"` // "in", "out" or "internal"
	Type      string                 `json:"type"`      // "request", "response", "command", "output"
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Tracer records protocol traffic and command executions. It is safe for
// concurrent use; a nil or disabled tracer ignores every call.
type Tracer struct {
	enabled   bool
	mu        sync.Mutex
	traceFile *os.File
	events    []TraceEvent
}

// NewTracer creates a new debug tracer. With a trace file, events are
// streamed as NDJSON and rewritten as a JSON array on Close.
func NewTracer(enabled bool, traceFile string) (*Tracer, error) {
	tracer := &Tracer{
		enabled: enabled,
		events:  make([]TraceEvent, 0),
	}

	if enabled && traceFile != "" {
		file, err := os.Create(traceFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		tracer.traceFile = file
		log.Info().Str("file", traceFile).Msg("Debug tracing enabled")
	}

	return tracer, nil
}

// Enabled reports whether events are being recorded
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled
}

// TraceIncoming logs an incoming message
func (t *Tracer) TraceIncoming(msgType string, data interface{}, metadata map[string]interface{}) {
	t.trace("in", msgType, data, metadata)
}

// TraceOutgoing logs an outgoing message
func (t *Tracer) TraceOutgoing(msgType string, data interface{}, metadata map[string]interface{}) {
	t.trace("out", msgType, data, metadata)
}

// TraceCommand logs a command execution
func (t *Tracer) TraceCommand(command string, args []string, shell bool) {
	t.trace("internal", "command", strings.TrimSpace(command+" "+strings.Join(args, " ")), map[string]interface{}{
		"command": command,
		"args":    args,
		"shell":   shell,
	})
}

// TraceCommandOutput logs command output
func (t *Tracer) TraceCommandOutput(output string, exitCode int, err error) {
	metadata := map[string]interface{}{
		"exit_code": exitCode,
		"success":   err == nil,
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	t.trace("internal", "output", output, metadata)
}

func (t *Tracer) trace(direction, msgType string, data interface{}, metadata map[string]interface{}) {
	if !t.Enabled() {
		return
	}

	event := TraceEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Direction: direction,
		Type:      msgType,
		Data:      data,
		Metadata:  metadata,
	}

	t.addEvent(event)
	log.Debug().
		Str("id", event.ID).
		Str("direction", direction).
		Str("type", msgType).
		Interface("data", data).
		Msg("TRACE")
}

// Events returns a copy of the recorded events
func (t *Tracer) Events() []TraceEvent {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// addEvent adds an event to the trace
func (t *Tracer) addEvent(event TraceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, event)

	if t.traceFile != nil {
		if data, err := json.Marshal(event); err == nil {
			fmt.Fprintf(t.traceFile, "%s\n", data)
		}
	}
}

// Close closes the tracer and writes final trace file
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.traceFile == nil {
		return nil
	}
	data, err := json.MarshalIndent(t.events, "", "  ")
	if err == nil {
		if _, err := t.traceFile.Seek(0, 0); err != nil {
			log.Warn().Err(err).Msg("Failed to rewind trace file")
		}
		if err := t.traceFile.Truncate(0); err != nil {
			log.Warn().Err(err).Msg("Failed to truncate trace file")
		}
		if _, err := t.traceFile.Write(data); err != nil {
			log.Warn().Err(err).Msg("Failed to write trace file")
		}
	}
	err = t.traceFile.Close()
	t.traceFile = nil
	return err
}

// PrintSummary prints a summary of the trace
func (t *Tracer) PrintSummary() {
	if !t.Enabled() {
		return
	}

	events := t.Events()
	inCount, outCount, cmdCount, failed := 0, 0, 0, 0
	for _, event := range events {
		switch event.Direction {
		case "in":
			inCount++
		case "out":
			outCount++
		case "internal":
			if event.Type == "command" {
				cmdCount++
			}
			if event.Type == "output" && event.Metadata["success"] == false {
				failed++
			}
		}
	}

	log.Info().
		Int("total_events", len(events)).
		Int("incoming", inCount).
		Int("outgoing", outCount).
		Int("commands", cmdCount).
		Int("failed_commands", failed).
		Msg("Debug trace summary")
}
