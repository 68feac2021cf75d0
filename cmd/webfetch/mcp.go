package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/mcp"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (defaults apply when empty)")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: webfetch mcp-server [options]

Start an MCP (Model Context Protocol) server exposing the fetcher to AI assistants.
Logs go to stderr; with the stdio transport stdout carries the protocol.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport (for desktop MCP clients)
  webfetch mcp-server -config config.yaml

  # Start with SSE transport on port 8080
  webfetch mcp-server -config config.yaml -transport sse -port 8080

Available MCP Tools:
  fetch_urls      Fetch a batch of URLs (optionally as a background job)
  web_search      Search the web for result links
  research        Search, fetch and summarize the top results
  get_job_status  Check a background fetch job
  cancel_job      Cancel a background fetch job
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doMcpServer(*configFile, *transport, *port, *logLevel, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath, transport string, port int, logLevel string, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr) // MCP protocol uses stdout, logs go to stderr
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Debug(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error in config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startMetrics(ctx, appCfg.MetricsAddr, log)

	serverCfg := &mcp.ServerConfig{
		AppConfig: appCfg,
		Transport: transport,
		Port:      port,
		Logger:    log,
	}

	cache, err := openCache(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening cache: %v\n", err)
		return 1
	}
	if cache != nil {
		defer cache.Close()
		serverCfg.Cache = cache
	}

	server, err := mcp.NewServer(serverCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer server.Shutdown(ctx)

	log.Infof("Starting MCP server (transport: %s)", transport)

	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}

	return 0
}
