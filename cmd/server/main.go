package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"quorumgate/internal/audit"
	"quorumgate/internal/consensus"
	"quorumgate/internal/merkle"
	"quorumgate/internal/platform/config"
	"quorumgate/internal/platform/httpserver"
	"quorumgate/internal/platform/logger"
	platformredis "quorumgate/internal/platform/redis"
	"quorumgate/internal/record"
	recmetrics "quorumgate/internal/record/metrics"
	recservice "quorumgate/internal/record/service"
	"quorumgate/internal/record/store/consumed"
	"quorumgate/internal/record/store/records"
	"quorumgate/internal/token"
	httptransport "quorumgate/internal/transport/http"
	"quorumgate/internal/validation"
	valmetrics "quorumgate/internal/validation/metrics"
	valservice "quorumgate/internal/validation/service"
	"quorumgate/pkg/domain"
)

// maxPayloadBytes caps request payloads on both stages. Kept in sync between
// the Stage 1 payload validator and the Stage 2 applier so a payload that
// earns a token is never rejected later for size alone.
const maxPayloadBytes = 1 << 20

// main wires the two-stage pipeline: Stage 1 validation and token issuance,
// Stage 2 consensus-backed permanent storage. Business logic lives in the
// internal services; this file only builds and connects them.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- token chain ---------------------------------------------------

	keyring, err := token.NewKeyring(2)
	if err != nil {
		return err
	}
	issuer := token.NewIssuer(keyring, cfg.Token.Issuer, cfg.Token.Audience, cfg.Token.TTL, time.Now)
	verifier := token.NewVerifier(keyring, cfg.Token.Issuer, cfg.Token.Audience, time.Now)

	// --- stage 1: validation -------------------------------------------

	stage1, err := valservice.New(
		[]validation.Validator{
			validation.PayloadValidator{MaxBytes: maxPayloadBytes},
			validation.OriginValidator{},
			validation.IdentityValidator{},
		},
		issuer,
		valservice.Config{
			MinValidators:  cfg.Validation.MinValidators,
			MaxValidators:  cfg.Validation.MaxValidators,
			Deadline:       cfg.Validation.ValidationDeadline,
			FraudThreshold: cfg.Validation.FraudThreshold,
			ClockSkew:      cfg.Validation.ClockSkew,
		},
		log,
		valmetrics.New(),
	)
	if err != nil {
		return err
	}

	// --- audit trail ---------------------------------------------------

	publisher := audit.NewPublisher(256, log)
	sink, closeSink, err := buildAuditSink(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeSink()
	go func() {
		if err := publisher.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit publisher stopped", "error", err)
		}
	}()

	// --- external stores -----------------------------------------------

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var consumedSet consumed.Set
	if redisClient != nil {
		defer redisClient.Close()
		consumedSet = consumed.NewRedisSet(redisClient.Client)
		log.Info("consumed token set backed by redis")
	} else {
		consumedSet = consumed.NewMemorySet(time.Now)
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		log.Info("record log backed by postgres")
	}

	// --- stage 2: consensus cluster ------------------------------------

	// Every node owns a private tree and record log. When postgres is
	// configured only the API-serving node persists there; the replicas
	// keep in-memory copies so the unique proposal constraint holds.
	var primaryStore records.Store = records.NewMemoryStore()
	if pool != nil {
		primaryStore = records.NewPostgresStore(pool)
	}

	nodeCount := cfg.Consensus.NodeCount
	if f := cfg.Consensus.FaultTolerance; f > 0 && nodeCount < 3*f+1 {
		nodeCount = 3*f + 1
	}

	appliers := make([]*record.Applier, 0, nodeCount)
	factory := func(m consensus.Member) consensus.Applier {
		tree, err := merkle.New(cfg.Merkle.TreeDepth)
		if err != nil {
			panic(err)
		}
		store := primaryStore
		if len(appliers) > 0 {
			store = records.NewMemoryStore()
		}
		a := record.NewApplier(m.ID, tree, store, nil, maxPayloadBytes, log)
		appliers = append(appliers, a)
		return a
	}

	cluster, err := consensus.NewCluster(
		nodeCount,
		cfg.Consensus.ConsensusTimeout,
		log,
		factory,
		consensus.WithReporter(audit.NewReporter(publisher)),
	)
	if err != nil {
		return err
	}
	defer cluster.Close()
	for _, a := range appliers {
		a.BindNodeSet(cluster.Set)
	}

	stage2 := recservice.New(
		verifier,
		consumedSet,
		primaryStore,
		cluster.Engine(0),
		appliers[0],
		domain.UUIDGenerator{},
		recservice.Config{
			ReservationTTL:  cfg.Token.TTL + time.Minute,
			RetryBudget:     2,
			MaxPayloadBytes: maxPayloadBytes,
		},
		log,
		recmetrics.New(),
		recservice.WithAudit(publisher),
	)

	// --- http ----------------------------------------------------------

	router := httptransport.NewRouter(
		httptransport.NewAuthenticateHandler(stage1, log),
		httptransport.NewRecordHandler(stage2, cluster.Set, log),
		func() error {
			hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if redisClient != nil {
				if err := redisClient.Health(hctx); err != nil {
					return err
				}
			}
			if pool != nil {
				if err := pool.Ping(hctx); err != nil {
					return err
				}
			}
			return nil
		},
	)

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting quorumgate", "addr", cfg.Addr, "nodes", nodeCount)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildAuditSink(cfg config.KafkaConfig, log *slog.Logger) (audit.Sink, func(), error) {
	if len(cfg.Brokers) == 0 {
		return audit.NewMemorySink(), func() {}, nil
	}
	sink, err := audit.NewKafkaSink(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit events published to kafka", "topic", cfg.Topic)
	return sink, func() { sink.Close() }, nil
}
