// Package service assembles the MCP server for the vehicle-shopping
// assistant: it opens the funnel application, binds the tool handlers, and
// serves them over stdio.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/drivelane/drivelane/internal/funnel/app"
	"github.com/drivelane/drivelane/internal/platform/branding"
	"github.com/drivelane/drivelane/internal/services/mcp/domain"
)

// serverName identifies this MCP server to clients.
var serverName = branding.AppName + " MCP"

// serverVersion identifies the MCP server version.
const serverVersion = "0.1.0"

// Config carries the MCP service settings.
type Config struct {
	// DBPath locates the SQLite database backing the funnel store.
	DBPath string
}

// Server hosts the MCP server and the funnel application behind it.
type Server struct {
	mcpServer *mcp.Server
	app       *app.App
}

// New opens the funnel application at dbPath and binds every tool handler to
// a configured MCP server.
func New(dbPath string) (*Server, error) {
	application, err := app.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open funnel application: %w", err)
	}
	return newServer(application), nil
}

func newServer(application *app.App) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(mcpServer, domain.RecordEngagementTool(), domain.RecordEngagementHandler(application.Service))
	mcp.AddTool(mcpServer, domain.GetEscalationsTool(), domain.GetEscalationsHandler(application.Service))
	mcp.AddTool(mcpServer, domain.GetEscalationTool(), domain.GetEscalationHandler(application.Service))
	mcp.AddTool(mcpServer, domain.AcknowledgeEscalationTool(), domain.AcknowledgeEscalationHandler(application.Service))
	mcp.AddTool(mcpServer, domain.EvaluateGuardrailsTool(), domain.EvaluateGuardrailsHandler())

	return &Server{mcpServer: mcpServer, app: application}
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the funnel application held by the server.
func (s *Server) Close() error {
	if s == nil || s.app == nil {
		return nil
	}
	if err := s.app.Close(); err != nil {
		return err
	}
	s.app = nil
	return nil
}

// serveWithTransport starts the MCP server using the provided transport. The
// server and its database share a single exit path so cleanup behavior is
// consistent regardless of how the run ends.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close funnel application: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close funnel application: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg.DBPath)
	if err != nil {
		return err
	}
	return server.serveWithTransport(ctx, &mcp.StdioTransport{})
}
