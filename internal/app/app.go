// Package app wires the engine's collaborators for the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/clients"
	"github.com/spec-kit/triage-engine/internal/config"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/persistence"
	"github.com/spec-kit/triage-engine/internal/queue"
	"github.com/spec-kit/triage-engine/internal/repository"
	"github.com/spec-kit/triage-engine/internal/service"
)

// Container holds every long-lived dependency of a process.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Queue    *queue.RedisQueue

	Users   repository.UserRepository
	SLA     *service.SLAService
	Triage  *service.TriageService
	Sweeper *service.SweeperService

	shutdownTracing func(context.Context) error
}

type stores struct {
	tickets   repository.TicketRepository
	users     repository.UserRepository
	policies  repository.SLAPolicyRepository
	history   repository.TicketHistoryRepository
	knowledge repository.KnowledgeRepository
}

// New connects to Postgres and Redis and builds the services. Without a
// Postgres DSN the in-memory store is used.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry, cfg.App.Version, logger)
	if err != nil {
		return nil, err
	}

	fallbackPolicy, err := config.LoadSLAPolicyFile(cfg.SLA.PolicyFile)
	if err != nil {
		return nil, err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations && pg.Pool != nil {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			pg.Close()
			return nil, err
		}
	}

	var st stores
	if pool := pg.PoolHandle(); pool != nil {
		st = stores{
			tickets:   repository.NewTicketRepository(pool),
			users:     repository.NewUserRepository(pool),
			policies:  repository.NewSLAPolicyRepository(pool, fallbackPolicy, logger.Named("sla_policy")),
			history:   repository.NewTicketHistoryRepository(pool),
			knowledge: repository.NewKnowledgeRepository(pool),
		}
	} else {
		logger.Warn("using in-memory store; data will not survive a restart")
		mem := repository.NewMemoryStore(fallbackPolicy)
		st = stores{
			tickets:   mem.Tickets(),
			users:     mem.Users(),
			policies:  mem.SLAPolicies(),
			history:   mem.History(),
			knowledge: mem.Knowledge(),
		}
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	jobs := queue.NewRedisQueue(rdb.Client, queue.Options{
		Name:     cfg.Queue.Name,
		Consumer: cfg.Queue.ConsumerID,
		Policy:   queue.RetryPolicyFromConfig(cfg.Queue),
		DedupTTL: cfg.Queue.DedupTTL(),
		Lease:    cfg.Lease(),
		Logger:   logger.Named("queue"),
	})

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, st.history, logger.Named("trail")).RegisterHandlers()

	external := cfg.Triage.ExternalTimeout()
	gemini := clients.NewGeminiClient(cfg.LLM, external)
	ingest := clients.NewIngestClient(cfg.Retriever, external)

	sla := service.NewSLAService(st.policies, logger)
	triage := service.NewTriageService(service.TriageDependencies{
		TicketRepo: st.tickets,
		Classifier: service.NewClassifier(clients.NewModelClassifier(gemini), external, logger.Named("classifier")),
		Retriever:  service.NewRetrievalService(ingest, st.knowledge),
		Drafter:    service.NewReplyDrafter(gemini, external, logger.Named("drafter")),
		SLA:        sla,
		Assigner: service.NewAssignmentService(service.AssignmentDependencies{
			UserRepo: st.users,
			Logger:   logger.Named("assignment"),
			Rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		}),
		Queue:      jobs,
		Dispatcher: dispatcher,
		Logger:     logger.Named("triage"),
		TopK:       cfg.Triage.RetrieverTopK,
	})
	sweeper := service.NewSweeperService(service.SweeperDependencies{
		TicketRepo: st.tickets,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("sweeper"),
	})

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Metrics:         metrics,
		Postgres:        pg,
		Redis:           rdb,
		Queue:           jobs,
		Users:           st.users,
		SLA:             sla,
		Triage:          triage,
		Sweeper:         sweeper,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases connections and flushes traces.
func (c *Container) Close(ctx context.Context) {
	if err := c.shutdownTracing(ctx); err != nil {
		c.Logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	c.Redis.Close()
	c.Postgres.Close()
}
