package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	config "taskmate/app/configs"
	"taskmate/app/core/interaction/gateway"
	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/agent"
	"taskmate/app/core/orchestrator/command"
	"taskmate/app/core/orchestrator/db"
	"taskmate/app/core/orchestrator/dialogue"
	"taskmate/app/core/orchestrator/execlog"
	"taskmate/app/core/orchestrator/search"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/core/scheduler"
	"taskmate/app/pkg/logger"
	"taskmate/app/pkg/types"
)

// App is the assembled assistant: storage, model clients, the agent and the
// gateway that channels are registered on.
type App struct {
	Config    config.Config
	DB        *db.DB
	Store     *task.SQLiteStore
	Search    *search.Service
	Agent     *agent.DefaultAgent
	Gateway   *gateway.DefaultGateway
	Scheduler *scheduler.Scheduler
	Status    *StatusCollector

	trace *gateway.DailyTraceFile
}

// Build wires every component from cfg. Missing API keys are not an error:
// the affected stages fall back to their offline behavior.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	database, err := db.NewSQLiteDB(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	store := task.NewStore(database)
	logger.Info("[Runtime] Database %s (schema v%d)", database.Path(), db.SchemaVersion)

	calls := execlog.New(cfg.Log.ExecLogDir, "taskmate")
	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	if completer != nil {
		completer = calls.Completer(completer)
	}
	if embedder != nil {
		embedder = calls.Embedder(embedder)
	}

	svc := search.NewService(store, embedder, cfg.Search.TopK, cfg.Search.Threshold)
	brain := agent.NewAgent(cfg.Agent.Name,
		dialogue.Deps{Store: store, Completer: completer, Embedder: embedder, Search: svc},
		dialogue.Config{
			HistoryLimit:       cfg.Dialogue.HistoryLimit,
			ContextWindow:      cfg.Dialogue.ContextWindow,
			TitleWordThreshold: cfg.Dialogue.TitleWordThreshold,
			TitleMaxChars:      cfg.Dialogue.TitleMaxChars,
			ListLimit:          cfg.Dialogue.ListLimit,
		},
		command.NewExecutor(cfg.Log.AuditDir),
		seconds(cfg.Agent.SessionIdleSec),
	)

	gw := gateway.NewGateway(brain)
	var tracer *gateway.DailyTraceFile
	if dir := strings.TrimSpace(cfg.Log.TraceDir); dir != "" {
		tracer, err = gateway.NewTraceRecorder(dir)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init trace recorder: %w", err)
		}
		gw.SetTraceRecorder(tracer)
	}

	jobs := scheduler.New()
	err = RegisterMaintenanceJobs(jobs, MaintenanceOptions{
		Sessions:      brain,
		SweepEvery:    seconds(cfg.Jobs.SessionSweepSec),
		Store:         store,
		Embedder:      embedder,
		BackfillEvery: seconds(cfg.Jobs.EmbedBackfillSec),
		BackfillBatch: cfg.Jobs.EmbedBackfillSize,
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("[Runtime] Built %s (completion=%t embedding=%s)", cfg.Agent.Name, completer != nil, cfg.Embedding.Provider)
	return &App{
		Config:    cfg,
		DB:        database,
		Store:     store,
		Search:    svc,
		Agent:     brain,
		Gateway:   gw,
		Scheduler: jobs,
		Status:    &StatusCollector{Gateway: gw, Agent: brain, Scheduler: jobs, Started: time.Now()},
		trace:     tracer,
	}, nil
}

func (a *App) RegisterChannel(c types.Channel) {
	a.Gateway.RegisterChannel(c)
}

// Run starts the background jobs and blocks in the gateway until ctx ends or
// a channel fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.Scheduler.Stop(3 * time.Second); err != nil {
			logger.Warn("[Runtime] %v", err)
		}
	}()
	return a.Gateway.Start(ctx)
}

func (a *App) Close() error {
	if err := a.trace.Close(); err != nil {
		logger.Warn("[Runtime] Close trace: %v", err)
	}
	return a.DB.Close()
}

func newCompleter(cfg config.LLMConfig) (llm.Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("[Runtime] No completion API key; using offline fallbacks")
		return nil, nil
	}
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.ChatModel,
	})
	if err != nil {
		return nil, fmt.Errorf("init completion client: %w", err)
	}
	return client, nil
}

func newEmbedder(ctx context.Context, cfg config.Config) (llm.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		key := cfg.Embedding.APIKey
		if key == "" {
			key = cfg.LLM.APIKey
		}
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         key,
			BaseURL:        cfg.Embedding.BaseURL,
			EmbeddingModel: cfg.Embedding.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai embeddings: %w", err)
		}
		return client, nil
	case "genai":
		emb, err := llm.NewGenAIEmbedder(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model)
		if err != nil {
			return nil, fmt.Errorf("init genai embeddings: %w", err)
		}
		return emb, nil
	default:
		return nil, nil
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
