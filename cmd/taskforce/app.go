package main

import (
	"context"
	"fmt"

	"github.com/nidhogg/taskforce/internal/agent"
	"github.com/nidhogg/taskforce/internal/api"
	"github.com/nidhogg/taskforce/internal/config"
	"github.com/nidhogg/taskforce/internal/handoff"
	"github.com/nidhogg/taskforce/internal/health"
	"github.com/nidhogg/taskforce/internal/mcp"
	"github.com/nidhogg/taskforce/internal/metrics"
	"github.com/nidhogg/taskforce/internal/orchestrator"
	"github.com/nidhogg/taskforce/internal/provider"
	"github.com/nidhogg/taskforce/internal/store"
	"github.com/nidhogg/taskforce/internal/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Routing keys for LLM calls.
const (
	chatterName    = "taskforce"
	summarizerName = "taskforce_summarizer"
)

// app is the fully wired runtime.
type app struct {
	cfg        *config.Config
	registry   *prometheus.Registry
	deps       agent.Deps
	catalog    *agent.Catalog
	general    *agent.Agent
	router     *agent.RouterAgent
	supervisor *orchestrator.Supervisor
	batch      *orchestrator.BatchRunner
	storage    store.ConversationStorage
	monitor    *health.Monitor
	closers    []func()
	logger     *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry(), logger: logger}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.New(a.registry)
	a.monitor = health.NewMonitor(cfg.HealthConfig(), logger)

	llm, summarizer, err := a.initProviders(rec)
	if err != nil {
		return nil, err
	}

	tools := tool.NewDefaultRegistry(cfg.BuiltinOptions())
	a.initMCP(ctx, tools)

	a.deps = agent.Deps{
		LLM:      llm,
		Tools:    tools,
		Executor: tool.NewExecutor(cfg.ToolPolicy(), rec, logger),
		Metrics:  rec,
		Logger:   logger,

		Compactor: agent.NewCompactor(cfg.Agent.HistoryTokens, summarizer, logger),
	}
	a.catalog, err = agent.DefaultCatalog(a.deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build agents: %w", err)
	}
	a.general = agent.New(a.deps)
	a.router = agent.NewRouterAgent(a.catalog, llm, logger)

	coordinator, err := a.initContracts(rec)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.supervisor = orchestrator.NewSupervisor(llm, orchestrator.Executors(a.catalog), cfg.SupervisorConfig(), logger).
		WithCoordinator(coordinator).
		WithMetrics(rec)
	if cfg.System.RunEvents {
		bus, busErr := orchestrator.NewEventBus(ctx, cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without run events", zap.Error(busErr))
		} else {
			a.supervisor.WithEventBus(bus)
			a.closers = append(a.closers, func() { bus.Close() })
		}
	}
	a.batch = orchestrator.NewBatchRunner(a.general, cfg.Agent.BatchConcurrency, cfg.Agent.MaxIterations, logger)

	storage, closeStorage, err := store.Open(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.storage = storage
	a.closers = append(a.closers, closeStorage)

	logger.Info("runtime ready",
		zap.Strings("agents", a.catalog.Names()),
		zap.Int("tools", tools.Len()),
		zap.String("storage", cfg.Storage.Backend))
	return a, nil
}

// initProviders returns the JSON-mode chatter agents reason through and a
// plain-text one used to summarize session history.
func (a *app) initProviders(rec *metrics.Recorder) (provider.Chatter, provider.Chatter, error) {
	pcs := a.cfg.ProviderConfigs()
	if len(pcs) == 0 {
		return nil, nil, fmt.Errorf("no LLM provider configured: set OPENAI_API_KEY or add providers to the config file")
	}

	router := provider.NewRouter(a.logger).WithMetrics(rec)
	ids := make([]string, 0, len(pcs))
	for _, pc := range pcs {
		var p provider.Provider
		switch pc.Type {
		case "openai":
			p = provider.NewOpenAIProvider(pc, a.logger)
		case "anthropic":
			p = provider.NewAnthropicProvider(pc, a.logger)
		default:
			a.logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		router.Register(p)
		a.monitor.Register("provider:"+pc.ID, p.HealthCheck, nil)
		ids = append(ids, pc.ID)
	}
	if a.cfg.LLM.Provider != "" {
		router.SetDefault(a.cfg.LLM.Provider)
	}

	var fallbacks []string
	for _, id := range ids {
		if id != router.DefaultID() {
			fallbacks = append(fallbacks, id)
		}
	}
	router.SetFallbacks(chatterName, fallbacks)
	router.SetFallbacks(summarizerName, fallbacks)
	if id := a.cfg.LLM.SummaryProvider; id != "" {
		router.Bind(summarizerName, id)
	}

	plain := a.cfg.ChatOptions()
	plain.JSONMode = false
	plain.MaxTokens = 512
	return router.Chatter(chatterName, a.cfg.ChatOptions()), router.Chatter(summarizerName, plain), nil
}

func (a *app) initMCP(ctx context.Context, tools *tool.Registry) {
	var clients []*mcp.Client
	for _, sc := range a.cfg.MCP.Servers {
		var c *mcp.Client
		switch sc.Type {
		case "stdio":
			c = mcp.NewStdioClient(sc.Name, sc.Command, sc.Args, a.logger)
		case "sse":
			c = mcp.NewSSEClient(sc.Name, sc.URL, a.logger)
		}
		if err := c.Connect(ctx); err != nil {
			a.logger.Warn("MCP server unavailable", zap.String("name", sc.Name), zap.Error(err))
			continue
		}
		a.monitor.Register("mcp:"+sc.Name, c.Ping, c.Reconnect)
		a.closers = append(a.closers, func() { c.Close() })
		clients = append(clients, c)
	}
	if n := tool.RegisterMCPTools(tools, clients); n > 0 {
		a.logger.Info("registered MCP tools", zap.Int("count", n))
	}
}

func (a *app) initContracts(rec *metrics.Recorder) (*handoff.Coordinator, error) {
	coordinator := handoff.NewCoordinator(rec, a.logger)
	coordinator.Register(handoff.ContractName("database_agent"), handoff.DatabaseOutputContract())
	coordinator.Register(handoff.ContractName("analysis_agent"), handoff.AnalysisOutputContract())
	if path := a.cfg.Validation.ContractsFile; path != "" {
		contracts, err := handoff.LoadContracts(path)
		if err != nil {
			return nil, err
		}
		coordinator.RegisterAll(contracts)
	}
	return coordinator, nil
}

func (a *app) services() api.Services {
	return api.Services{
		Deps:          a.deps,
		Catalog:       a.catalog,
		General:       a.general,
		Router:        a.router,
		Supervisor:    a.supervisor,
		Batch:         a.batch,
		Storage:       a.storage,
		Monitor:       a.monitor,
		Gatherer:      a.registry,
		MaxIterations: a.cfg.Agent.MaxIterations,
		SessionCache:  a.cfg.Storage.CacheSize,
	}
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
