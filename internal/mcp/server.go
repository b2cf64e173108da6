// Package mcp provides an MCP (Model Context Protocol) server for flightbreak.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/flightbreak/internal/config"
	"github.com/nvandessel/flightbreak/internal/logging"
	"github.com/nvandessel/flightbreak/internal/ratelimit"
	"github.com/nvandessel/flightbreak/internal/store"
)

// Tool names.
const (
	toolGenerateTrajectory    = "generate_trajectory"
	toolEstimateProbabilities = "estimate_probabilities"
	toolListRuns              = "list_runs"
)

// Server wraps the MCP SDK server and provides flightbreak tools.
type Server struct {
	server       *sdk.Server
	store        *store.RunStore
	settings     *config.Config
	logger       *slog.Logger
	runLog       *logging.RunLogger
	auditLogger  *AuditLogger
	toolLimiters *ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name     string         // Server name (e.g., "flightbreak")
	Version  string         // Server version
	StateDir string         // Directory holding the run history and audit log
	Settings *config.Config // Defaults for omitted tool arguments; nil uses config.Default()
	Logger   *slog.Logger
	RunLog   *logging.RunLogger
}

// NewServer creates a new MCP server with flightbreak tools.
func NewServer(cfg *Config) (*Server, error) {
	runStore, err := store.Open(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:      mcpServer,
		store:       runStore,
		settings:    settings,
		logger:      logger,
		runLog:      cfg.RunLog,
		auditLogger: NewAuditLogger(cfg.StateDir),
		toolLimiters: ratelimit.NewToolLimiters(
			toolGenerateTrajectory, toolEstimateProbabilities, toolListRuns),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	if err := s.auditLogger.Close(); err != nil {
		s.logger.Warn("failed to close audit log", "error", err)
	}
	return s.store.Close()
}
