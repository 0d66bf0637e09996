package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caucus-ai/caucus/internal/agent"
	"github.com/caucus-ai/caucus/internal/auction"
	"github.com/caucus-ai/caucus/internal/config"
	"github.com/caucus-ai/caucus/internal/cost"
	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/gate"
	"github.com/caucus-ai/caucus/internal/mission"
	"github.com/caucus-ai/caucus/internal/orchestrator"
	"github.com/caucus-ai/caucus/internal/pathmemory"
	"github.com/caucus-ai/caucus/internal/pruning"
	"github.com/caucus-ai/caucus/internal/queue"
	"github.com/caucus-ai/caucus/internal/runner"
	"github.com/caucus-ai/caucus/internal/service"
	"github.com/caucus-ai/caucus/internal/storage"
	"github.com/caucus-ai/caucus/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mission engine",
	Long: `Start the mission engine: open storage, wire the team pipeline, and
listen for directives on the control socket until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		engine, cleanup, err := buildEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}
		defer engine.Stop()

		server, err := service.NewServer(cfg.Socket, engine)
		if err != nil {
			return fmt.Errorf("failed to create control server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control server: %w", err)
		}
		defer server.Stop()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s engine listening on %s\n", green("✓"), cfg.Socket)
		if cfg.Database != "" {
			fmt.Printf("  database: %s\n", cfg.Database)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		fmt.Printf("\nreceived %v, shutting down\n", sig)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// pipeline is the wired mission machinery shared by the server and the
// one-shot run command.
type pipeline struct {
	executive *mission.Executive
	bus       *events.Bus
	store     *storage.Storage // nil without a database
	ledger    *cost.Ledger
	pruner    *pruning.Evaluator
	closers   []func()
}

func (p *pipeline) cleanup() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// buildPipeline wires storage, event bus, path memory, pruning, gate,
// auction, runner, per-mission orchestrators, and the mission executive.
func buildPipeline(cfg *config.Config) (*pipeline, error) {
	p := &pipeline{}
	fail := func(err error) (*pipeline, error) {
		p.cleanup()
		return nil, err
	}

	// Durable storage is optional; without it the transcript lives only
	// in the bus ring and results only in memory.
	if cfg.Database != "" {
		store, err := storage.Open(cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("failed to open database: %w", err))
		}
		p.store = store
		p.closers = append(p.closers, func() { store.Close() })
	}

	busCfg := &events.Config{}
	if p.store != nil {
		busCfg.Sink = p.store
	}
	bus := events.NewBus(busCfg)
	p.bus = bus

	var paths pathmemory.Store
	if p.store != nil {
		paths = pathmemory.NewFallback(storage.NewPathStore(p.store, cfg.Memory.TTL), bus, "system")
	} else {
		paths = pathmemory.NewMemoryStore(&pathmemory.MemoryConfig{
			TTL:           cfg.Memory.TTL,
			SweepInterval: cfg.Memory.SweepInterval,
		})
	}
	p.closers = append(p.closers, func() { paths.Close() })

	pruner, err := pruning.NewEvaluator(&pruning.EvaluatorConfig{
		Config: &pruning.Config{
			Window:              cfg.Pruning.Window,
			NoveltyThreshold:    cfg.Pruning.NoveltyThreshold,
			SimilarityThreshold: cfg.Pruning.SimilarityThreshold,
			ConsecutiveLow:      cfg.Pruning.ConsecutiveLow,
			SuggestionTTL:       cfg.Pruning.SuggestionTTL,
		},
		Store: paths,
		Bus:   bus,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create pruning evaluator: %w", err))
	}
	p.pruner = pruner

	gateThresholds := gate.DefaultConfig()
	gateThresholds.AcceptanceThreshold = cfg.Gate.AcceptThreshold
	gateThresholds.VetoCredibilityFloor = cfg.Gate.VetoFloor
	critGate, err := gate.New(&gate.GateConfig{Config: gateThresholds, Bus: bus})
	if err != nil {
		return fail(fmt.Errorf("failed to create critic gate: %w", err))
	}

	router := auction.NewRouter(&auction.Config{
		Window:            cfg.Auction.Window,
		DefaultSpecialist: cfg.Auction.DefaultSpecialist,
		Bus:               bus,
	})

	ledger := cost.NewLedger(&cost.Config{
		Limit:        cfg.Budget.Limit,
		WarnFraction: cfg.Budget.WarnFraction,
		Bus:          bus,
	})
	p.ledger = ledger

	teamRunner, err := runner.New(&runner.Config{
		Store:         paths,
		Pruner:        pruner,
		Bus:           bus,
		Ledger:        ledger,
		Timeout:       cfg.Runner.Timeout,
		MaxRetries:    cfg.Runner.MaxRetries,
		MaxConcurrent: int64(cfg.Runner.MaxConcurrent),
		RatePerSecond: cfg.Runner.RatePerSecond,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create team runner: %w", err))
	}

	registry, err := buildRoster(cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to build team roster: %w", err))
	}

	stages := pipelineStages(cfg)
	teams := registry.Teams()
	critics := registry.Critics()
	spawn := func(runID string) (mission.StepExecutor, error) {
		return orchestrator.New(&orchestrator.Config{
			Bus:     bus,
			Runner:  teamRunner,
			Gate:    critGate,
			Router:  router,
			Critics: critics,
			Teams:   teams,
			Stages:  stages,
		})
	}

	constitution := agent.NewConstitutionalCritic("constitution", nil, 0.9)
	executive, err := mission.New(&mission.Config{
		Bus:            bus,
		Spawn:          spawn,
		Gate:           critGate,
		Constitutional: []types.Critic{constitution},
		StepCap:        cfg.Mission.StepCap,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create mission executive: %w", err))
	}
	p.executive = executive
	return p, nil
}

// buildEngine wires the pipeline plus the directive queue into a
// serving engine. The returned cleanup closes whatever was opened, in
// reverse order.
func buildEngine(ctx context.Context, cfg *config.Config) (*service.Engine, func(), error) {
	p, err := buildPipeline(cfg)
	if err != nil {
		return nil, func() {}, err
	}

	directives, err := buildQueue(ctx, cfg, p.bus)
	if err != nil {
		p.cleanup()
		return nil, func() {}, err
	}
	p.closers = append(p.closers, func() { directives.Close() })

	engineCfg := &service.EngineConfig{
		Queue: directives,
		Bus:   p.bus,
		Run: func(ctx context.Context, d *types.Directive) *types.DirectiveResult {
			return p.executive.Run(ctx, d.ID, d.Goal, d.Context)
		},
	}
	engineCfg.Ledger = p.ledger
	engineCfg.Pruner = p.pruner
	if p.store != nil {
		engineCfg.Results = p.store
	}
	engine, err := service.NewEngine(engineCfg)
	if err != nil {
		p.cleanup()
		return nil, func() {}, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, p.cleanup, nil
}

// buildRoster registers the teams the pipeline stages name plus the
// standing critics. AI teams need ANTHROPIC_API_KEY; the scripted roster
// needs nothing.
func buildRoster(cfg *config.Config) (*agent.Registry, error) {
	registry := agent.NewRegistry()
	if !cfg.AI.Enabled {
		if err := agent.DefaultRoster(registry); err != nil {
			return nil, err
		}
		return registry, nil
	}

	aiCfg := &agent.AIConfig{Model: cfg.AI.Model, MaxTokens: cfg.AI.MaxTokens}
	roles := map[string]string{
		"competitive-a": "Produce your best independent solution to the objective.",
		"competitive-b": "Produce your best independent solution, taking a different angle than the obvious one.",
		"proponent":     "Argue the strongest case for the leading approach and flesh it out.",
		"adversary":     "Attack the leading approach: find the failure modes and the hidden costs.",
		"innovator":     "Propose an unconventional approach the others would not consider.",
		"disruptor":     "Challenge the framing of the objective itself and reframe it if warranted.",
		"security":      "Review the work for vulnerabilities and unsafe assumptions.",
		"quality":       "Review the work for defects, gaps, and unverifiable claims.",
	}
	for id, role := range roles {
		team, err := agent.NewAITeam(id, role, aiCfg)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterTeam(team); err != nil {
			return nil, err
		}
	}
	critic, err := agent.NewAICritic("reviewer",
		"Judge whether the candidate output actually serves its objective. Flag fabrication, incoherence, and unsupported claims.", aiCfg)
	if err != nil {
		return nil, err
	}
	if err := registry.RegisterCritic(critic); err != nil {
		return nil, err
	}
	return registry, nil
}

// pipelineStages converts configured stages into orchestrator stages,
// falling back to the default pipeline when none are configured.
func pipelineStages(cfg *config.Config) []orchestrator.StageConfig {
	if len(cfg.Stages) == 0 {
		return orchestrator.DefaultStages()
	}
	stages := make([]orchestrator.StageConfig, len(cfg.Stages))
	for i, s := range cfg.Stages {
		stages[i] = orchestrator.StageConfig{
			Name:    s.Name,
			Kind:    orchestrator.StageKind(s.Kind),
			Teams:   s.Teams,
			Gated:   s.Gated,
			Auction: s.Auction,
		}
	}
	return stages
}

// buildQueue picks the directive queue backend: redis when configured,
// in-memory otherwise. A redis queue is wrapped in the fallback so a
// broker outage degrades to memory instead of failing submissions.
func buildQueue(ctx context.Context, cfg *config.Config, bus *events.Bus) (queue.Queue, error) {
	if cfg.Redis.Addr == "" {
		return queue.NewMemoryQueue(), nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rq, err := queue.NewRedisQueue(dialCtx, &queue.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: redis unavailable, using in-memory queue: %v\n", err)
		return queue.NewMemoryQueue(), nil
	}
	return queue.NewFallback(rq, bus, "system"), nil
}
