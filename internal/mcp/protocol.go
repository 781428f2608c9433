package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Protocol handles JSON-RPC 2.0 communication over newline delimited frames.
// Writes are serialized so concurrent handlers never interleave frames.
type Protocol struct {
	reader *bufio.Reader
	mu     sync.Mutex
	writer io.Writer
}

// NewProtocol creates a new protocol handler
func NewProtocol(reader io.Reader, writer io.Writer) *Protocol {
	return &Protocol{
		reader: bufio.NewReaderSize(reader, 64*1024),
		writer: writer,
	}
}

// ReadRequest reads a JSON-RPC request
func (p *Protocol) ReadRequest() (*Request, error) {
	var line []byte
	for {
		chunk, err := p.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read request: %w", err)
		}
		if len(bytes.TrimSpace(chunk)) > 0 {
			line = chunk
			break
		}
		if err == io.EOF {
			return nil, io.EOF
		}
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		log.Error().Bytes("data", line).Msg("Failed to parse request")
		return nil, &ParseFailure{Err: err}
	}

	log.Debug().
		Interface("id", req.ID).
		Str("method", req.Method).
		Msg("Received request")

	return &req, nil
}

// ParseFailure reports a frame that is not valid JSON
type ParseFailure struct {
	Err error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("failed to parse request: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// SendResponse writes a JSON-RPC response
func (p *Protocol) SendResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	data = append(data, '\n')

	p.mu.Lock()
	_, err = p.writer.Write(data)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	log.Debug().
		Interface("id", resp.ID).
		Bool("hasError", resp.Error != nil).
		Msg("Sent response")

	return nil
}

// SendError sends an error response
func (p *Protocol) SendError(id interface{}, code int, message string, data interface{}) error {
	return p.SendResponse(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &ErrorResponse{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// SendResult sends a successful response
func (p *Protocol) SendResult(id interface{}, result interface{}) error {
	return p.SendResponse(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// Error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)
