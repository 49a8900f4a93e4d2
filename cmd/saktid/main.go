// Command saktid is an example process wiring the coordinator and the
// recovery worker together, the way the teacher's various cmd/ entry
// points assemble a store from its constituent clients before serving
// anything. It is deliberately small: real deployments will have their own
// HTTP/gRPC front door and call coordinator.Coordinator.Execute from their
// own handlers, but every component below is production-shaped.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/capture"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/compensator"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/config"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/coordinator"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/idempotency"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/journal/sqlstore"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/kv"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/lock"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/logging"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/metrics"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/recovery"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/sqlparticipant"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/txcontext"
	"github.com/ridhoalpha/sakti-tx-sub001/internal/validator"
)

const ordersDatasource = "orders-db"

// envOr returns the value of the named environment variable, or def if it
// is unset. These are process-wiring details (connection strings, listen
// addresses) rather than the tunables config.Configuration documents.
func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func main() {
	logging.ConfigureLogging()

	cfg, err := config.Load(os.Getenv("SAKTI_CONFIG_FILE"))
	if err != nil {
		log.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.KVEndpoint})
	defer redisClient.Close()
	kvStore := kv.NewRedisStore(redisClient, cfg.LockPrefix)
	if err := kvStore.Ping(ctx); err != nil {
		log.Warn("redis not reachable at startup, continuing in degrade mode if configured", "error", err)
	}

	journalRepo, err := sqlstore.Open(envOr("SAKTI_JOURNAL_DSN", "postgres://localhost:5432/sakti?sslmode=disable"))
	if err != nil {
		log.Error("opening tx_log database", "error", err)
		os.Exit(1)
	}
	defer journalRepo.Close()

	if err := applyMigrations(journalRepo.DB()); err != nil {
		log.Error("applying tx_log migrations", "error", err)
		os.Exit(1)
	}

	ordersDB, err := sqlx.Connect("postgres", envOr("SAKTI_ORDERS_DSN", "postgres://localhost:5432/orders?sslmode=disable"))
	if err != nil {
		log.Error("opening orders database", "error", err)
		os.Exit(1)
	}
	defer ordersDB.Close()

	datasources := map[string]*sqlx.DB{ordersDatasource: ordersDB}
	resolve := func(name string) (*sqlx.DB, error) {
		db, ok := datasources[name]
		if !ok {
			return nil, fmt.Errorf("saktid: unknown datasource %q", name)
		}
		return db, nil
	}

	locks := lock.NewManager(kvStore, cfg.DegradeOnKVOutage)
	idemp := idempotency.NewStore(kvStore, cfg.IdempotencyPrefix)
	jlog := journal.NewLog(journalRepo, kvStore, 24*time.Hour)

	probe := func(ctx context.Context, datasource string) error {
		db, err := resolve(datasource)
		if err != nil {
			return err
		}
		var ignored int
		return db.GetContext(ctx, &ignored, "SELECT 1")
	}
	v := validator.New(
		time.Duration(cfg.ValidationLongRunningThresholdMs)*time.Millisecond,
		2*time.Second,
		probe,
	)

	compExec := compensator.NewExecutor(resolve)
	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)

	coord := &coordinator.Coordinator{
		Locks:          locks,
		Idempotency:    idemp,
		Contexts:       txcontext.NewManager(),
		Validator:      v,
		Journal:        jlog,
		Compensator:    compExec,
		Metrics:        rec,
		IdempotencyTTL: time.Duration(cfg.IdempotencyTTLSeconds) * time.Second,
	}

	worker := recovery.NewWorker(
		jlog, compExec, locks, rec,
		time.Duration(cfg.RecoveryIntervalMs)*time.Millisecond,
		time.Duration(cfg.RecoveryStallThresholdMs)*time.Millisecond,
		cfg.RecoveryMaxRetries,
	)
	go worker.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/orders/adjust-balance", newAdjustBalanceHandler(coord, cfg, resolve))
	srv := &http.Server{Addr: envOr("SAKTI_LISTEN_ADDR", ":8080"), Handler: mux}

	go func() {
		log.Info("saktid listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown failed", "error", err)
	}
}

// applyMigrations runs every pending goose migration embedded in
// sqlstore.MigrationsFS against db, the way a real deployment would run
// them as a release step rather than trusting manual DDL.
func applyMigrations(db *sql.DB) error {
	goose.SetBaseFS(sqlstore.MigrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// newAdjustBalanceHandler returns a minimal HTTP handler demonstrating how
// a caller drives the coordinator end to end: enlist a database, capture an
// UPDATE's before-image, and let Execute take it through validation,
// commit, or compensation. A real service would decode a request body
// instead of a fixed entity id.
func newAdjustBalanceHandler(coord *coordinator.Coordinator, cfg config.Configuration, resolve compensator.Resolver) http.HandlerFunc {
	snap := capture.FuncSnapshotter{
		IdentityFunc: func(entity any) string { return entity.(string) },
		SnapshotFunc: func(entity any) ([]byte, error) { return []byte(entity.(string)), nil },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		entityID := r.URL.Query().Get("account")
		if entityID == "" {
			http.Error(w, "missing account", http.StatusBadRequest)
			return
		}
		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey == "" {
			http.Error(w, "missing Idempotency-Key header", http.StatusBadRequest)
			return
		}

		work := func(ctx context.Context, tc *sakti.TransactionContext) ([]coordinator.Participant, error) {
			h := capture.New(tc, snap)
			h.EnlistDatabase(ordersDatasource)
			h.RecordEntityOp(ordersDatasource, sakti.OpUpdate, "accounts", entityID, []byte(entityID))

			db, err := resolve(ordersDatasource)
			if err != nil {
				return nil, err
			}
			p, err := sqlparticipant.Begin(ctx, ordersDatasource, db)
			if err != nil {
				return nil, err
			}
			return []coordinator.Participant{p}, nil
		}

		lockKey := "account:" + entityID
		if err := coord.Execute(r.Context(), lockKey, idempotencyKey, cfg.LockWaitMs, cfg.LockLeaseMs, "adjust-balance:"+entityID, work); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
