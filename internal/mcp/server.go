package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charignon/cmdbridge/internal/debug"
	"github.com/charignon/cmdbridge/internal/tools"
	"github.com/rs/zerolog/log"
)

// ProtocolVersion is the MCP revision this server speaks
const ProtocolVersion = "2024-11-05"

// ServerOptions configures a Server
type ServerOptions struct {
	Name         string
	Version      string
	Instructions string
	Tracer       *debug.Tracer
}

// Server represents an MCP server instance
type Server struct {
	protocol *Protocol
	registry *tools.Registry
	options  ServerOptions
	wg       sync.WaitGroup
}

// NewServer creates a new MCP server reading requests from in and writing
// responses to out
func NewServer(registry *tools.Registry, in io.Reader, out io.Writer, options ServerOptions) *Server {
	if options.Name == "" {
		options.Name = "cmdbridge"
	}
	if options.Version == "" {
		options.Version = "1.0.0"
	}
	return &Server{
		protocol: NewProtocol(in, out),
		registry: registry,
		options:  options,
	}
}

// Run serves requests until the input is closed. Tool calls run
// concurrently; Run waits for them before returning.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Int("tools", len(s.registry.List())).Msg("MCP server started")
	defer s.wg.Wait()

	for {
		req, err := s.protocol.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("Client disconnected")
				return nil
			}
			var parseErr *ParseFailure
			if errors.As(err, &parseErr) {
				s.reply(nil, s.protocol.SendError(nil, ParseError, "Parse error", parseErr.Err.Error()))
				continue
			}
			return err
		}

		s.options.Tracer.TraceIncoming("request", req, map[string]interface{}{"method": req.Method})

		if req.Method == "tools/call" && !req.IsNotification() {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.dispatch(ctx, req)
			}()
			continue
		}
		s.dispatch(ctx, req)
	}
}

func (s *Server) dispatch(ctx context.Context, req *Request) {
	if err := s.handleRequest(ctx, req); err != nil {
		log.Error().Err(err).Str("method", req.Method).Msg("Failed to handle request")
		if !req.IsNotification() {
			s.reply(req, s.protocol.SendError(req.ID, InternalError, err.Error(), nil))
		}
	}
}

// handleRequest processes a JSON-RPC request
func (s *Server) handleRequest(ctx context.Context, req *Request) error {
	if req.IsNotification() {
		log.Debug().Str("method", req.Method).Msg("Ignoring notification")
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return s.send(req, struct{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolCall(ctx, req)
	default:
		return s.sendError(req, MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

// handleInitialize handles the initialize request
func (s *Server) handleInitialize(req *Request) error {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendError(req, InvalidParams, "Invalid parameters", err.Error())
		}
	}

	log.Info().
		Str("client", params.ClientInfo.Name).
		Str("clientVersion", params.ClientInfo.Version).
		Str("protocolVersion", params.ProtocolVersion).
		Msg("Client initialized")

	return s.send(req, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    s.options.Name,
			Version: s.options.Version,
		},
		Instructions: s.options.Instructions,
	})
}

// handleToolsList handles the tools/list request
func (s *Server) handleToolsList(req *Request) error {
	registered := s.registry.List()
	infos := make([]ToolInfo, 0, len(registered))

	for _, tool := range registered {
		properties := make(map[string]Property, len(tool.Params))
		required := []string{}

		for _, p := range tool.Params {
			properties[p.Name] = Property{
				Type:        p.Type,
				Description: p.Description,
				Default:     p.Default,
				Enum:        p.Enum,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}

		infos = append(infos, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: InputSchema{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		})
	}

	return s.send(req, ToolsListResult{Tools: infos})
}

// handleToolCall handles the tools/call request
func (s *Server) handleToolCall(ctx context.Context, req *Request) error {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.sendError(req, InvalidParams, "Invalid parameters", err.Error())
	}

	result, err := s.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *tools.ErrUnknownTool
		if errors.As(err, &unknown) {
			return s.sendError(req, InvalidParams, unknown.Error(), nil)
		}
		return err
	}

	return s.send(req, ToolCallResult{
		Content: []ContentItem{{
			Type: "text",
			Text: result.Text,
		}},
		IsError: result.IsError,
	})
}

func (s *Server) send(req *Request, result interface{}) error {
	s.options.Tracer.TraceOutgoing("response", result, map[string]interface{}{"method": req.Method})
	return s.protocol.SendResult(req.ID, result)
}

func (s *Server) sendError(req *Request, code int, message string, data interface{}) error {
	s.options.Tracer.TraceOutgoing("error", message, map[string]interface{}{"method": req.Method, "code": code})
	return s.protocol.SendError(req.ID, code, message, data)
}

func (s *Server) reply(req *Request, err error) {
	if err == nil {
		return
	}
	method := ""
	if req != nil {
		method = req.Method
	}
	log.Error().Err(err).Str("method", method).Msg("Failed to send response")
}
