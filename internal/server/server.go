// Package server hosts the MCP server for the TOC Online tools over stdio
// or streamable HTTP transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hllvc/toconline-mcp/internal/observability/middleware"
)

const serverName = "TOC Online"

// Server wraps the MCP server and its transport lifecycle.
type Server struct {
	mcp        *mcpserver.MCPServer
	httpServer *http.Server
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the MCP server. The instructions announce read-only mode when
// active so the model knows write tools will be rejected up front.
func New(version string, readOnly bool, opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcpserver.NewMCPServer(
		serverName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithInstructions(instructions(readOnly)),
		mcpserver.WithRecovery(),
	)

	return s
}

// MCP returns the underlying MCP server for tool registration.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

func instructions(readOnly bool) string {
	base := "You are connected to the TOC Online accounting platform API. " +
		"You can manage customers, suppliers, products, sales documents, " +
		"and auxiliary data such as taxes, countries, currencies, and " +
		"document series. All monetary amounts are in EUR unless a currency " +
		"is specified."
	if readOnly {
		base += " IMPORTANT: The server is running in READ-ONLY mode. " +
			"Any tool that creates, updates, or deletes data will be rejected."
	}
	return base
}

// ServeStdio serves MCP over stdin/stdout and blocks until the client
// disconnects or ctx is cancelled. This is the default transport.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartHTTP starts the streamable HTTP transport in the background and
// returns immediately. Returns a channel for runtime errors and a startup
// error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error
// channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) StartHTTP(ctx context.Context, address string) (<-chan error, error) {
	// Create the listener synchronously to catch port-in-use errors immediately.
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	streamable := mcpserver.NewStreamableHTTPServer(s.mcp)

	mux := http.NewServeMux()
	mux.Handle("/mcp", applyMiddlewares(streamable,
		middleware.Logging(s.logger),
		Recovery,
	))

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // allows long-lived SSE streams, still bounded
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP transport. A server that
// never started HTTP shuts down trivially.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// Recovery recovers from panics in HTTP handlers and returns HTTP 500 to
// the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				// Logging of panics is handled in the Logging middleware
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// applyMiddlewares applies middlewares to a handler in the order they
// appear. The first middleware in the slice is the outermost.
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
