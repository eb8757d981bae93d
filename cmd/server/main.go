package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"otdebug-mcp-server/internal/config"
	"otdebug-mcp-server/internal/diagnose"
	"otdebug-mcp-server/internal/inspector"
	mcpserver "otdebug-mcp-server/internal/mcp"
	"otdebug-mcp-server/internal/probe"
	"otdebug-mcp-server/internal/recorder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the OT debug MCP config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	pageInspector := inspector.NewManager(cfg.Browser)
	defer func() {
		if err := pageInspector.Shutdown(context.Background()); err != nil {
			log.Printf("inspector shutdown: %v", err)
		}
	}()

	headerProber := probe.New(cfg.Probe.ProbeTimeout(), cfg.Probe.IsInsecureSkipVerify())

	var trace *recorder.Recorder
	if cfg.Server.TraceDir != "" {
		trace, err = recorder.New(cfg.Server.TraceDir)
		if err != nil {
			log.Fatalf("failed to initialize trace recorder: %v", err)
		}
		defer trace.Close()
	}

	var sink diagnose.TraceSink
	if trace != nil {
		sink = trace
	}
	session := diagnose.NewSession(pageInspector, headerProber, sink)
	if trace != nil {
		if err := trace.Start(session.ID); err != nil {
			log.Printf("trace recorder start failed, continuing without traces: %v", err)
		}
	}

	server, err := mcpserver.NewServer(cfg, session, headerProber)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting OT debug MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting OT debug MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}
