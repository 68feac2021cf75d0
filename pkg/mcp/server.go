// Package mcp exposes batch fetching, web search and research as MCP tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/batch"
	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/extract"
	"github.com/Sriram-PR/webfetch/pkg/orchestrate"
	"github.com/Sriram-PR/webfetch/pkg/search"
	"github.com/Sriram-PR/webfetch/pkg/storage"
)

const (
	serverName    = "webfetch"
	serverVersion = "0.4.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig *config.AppConfig
	Transport string // "stdio" or "sse"
	Port      int
	Logger    *logrus.Logger
	Cache     storage.OutcomeCache // Optional
	Provider  search.Provider      // Optional; built from AppConfig.Search when nil
}

// Server wraps the MCP server. Every tool shares one coordinator, so the
// concurrency limits hold across concurrent tool calls and background jobs.
type Server struct {
	mcpServer    *server.MCPServer
	cfg          *ServerConfig
	log          *logrus.Entry
	jobManager   *JobManager
	coordinator  *batch.Coordinator
	provider     search.Provider
	orchestrator *orchestrate.Orchestrator
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger.WithField("component", "mcp")

	coordinator, err := batch.NewCoordinator(*cfg.AppConfig, batch.Options{
		Extractor: extract.NewDefaultExtractor(cfg.AppConfig.Extract, log),
		Cache:     cfg.Cache,
	}, log)
	if err != nil {
		return nil, err
	}

	// Defaults are applied to the coordinator's copy
	searchCfg := coordinator.Config().Search
	provider := cfg.Provider
	if provider == nil {
		provider, err = search.NewProvider(searchCfg, nil)
		if err != nil {
			return nil, err
		}
	}

	filters := search.Filters{
		MaxURLs:        searchCfg.MaxResults,
		ExcludeDomains: searchCfg.ExcludeDomains,
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:    mcpServer,
		cfg:          cfg,
		log:          log,
		jobManager:   NewJobManager(),
		coordinator:  coordinator,
		provider:     provider,
		orchestrator: orchestrate.NewOrchestrator(provider, coordinator, filters, log),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	fetchURLsTool := mcp.NewTool("fetch_urls",
		mcp.WithDescription("Fetch a batch of URLs concurrently and return one outcome per URL, in input order"),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("The URLs to fetch"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("deadline_seconds",
			mcp.Description("Overall batch deadline in seconds (defaults to fetch.batch_timeout)"),
		),
		mcp.WithNumber("max_chars",
			mcp.Description("Truncate each page's extracted text to this many characters (default: 4000, 0 = no limit)"),
		),
		mcp.WithBoolean("background",
			mcp.Description("Run as a background job and return a job ID immediately"),
		),
	)
	s.mcpServer.AddTool(fetchURLsTool, s.handleFetchURLs)

	webSearchTool := mcp.NewTool("web_search",
		mcp.WithDescription("Search the web and return ranked result links"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 10, max: 50)"),
		),
	)
	s.mcpServer.AddTool(webSearchTool, s.handleWebSearch)

	researchTool := mcp.NewTool("research",
		mcp.WithDescription("Search the web, fetch the top results and return their extracted text as markdown"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Research query"),
		),
		mcp.WithNumber("max_chars",
			mcp.Description("Truncate each source's text to this many characters (default: 4000, 0 = no limit)"),
		),
	)
	s.mcpServer.AddTool(researchTool, s.handleResearch)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status, progress and (when finished) the result of a background fetch job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by fetch_urls with background=true"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a running background fetch job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID to cancel"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	s.log.Infof("Registered %d MCP tools", 5)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels background jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
