//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidestake/exchange/internal/app"
	"github.com/sidestake/exchange/internal/auth"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/infra"
	"github.com/sidestake/exchange/internal/matchmaking"
	"github.com/sidestake/exchange/internal/notify"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/reconciler"
	"github.com/sidestake/exchange/internal/repository"
	"github.com/sidestake/exchange/internal/settlement"
)

const (
	TestJWTSecret = "integration-test-secret-32-chars!"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "sidestake"
	TestDBPass    = "sidestake"
	TestDBName    = "sidestake_test"

	TestFeePct = 0.10
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server     *httptest.Server
	Pool       *pgxpool.Pool
	JWTMgr     *auth.JWTManager
	Engine     *matchmaking.Engine
	Reconciler *reconciler.Reconciler
	Settlement *settlement.Engine
	CryptoPay  *FakeCryptoPay

	Users     repository.UserRepository
	Fights    repository.FightRepository
	Deals     repository.DealRepository
	Waits     repository.InvoiceWaitRepository
	Transfers repository.TransferLogRepository

	t *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "sidestake")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func runMigrations() error {
	migratePath := fmt.Sprintf("file://%s/db/migrations", findProjectRoot())

	m, err := migrate.New(migratePath, testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func findProjectRoot() string {
	dir, _ := os.Getwd()
	for dir != "" && dir != "/" {
		if _, err := os.Stat(dir + "/go.mod"); err == nil {
			return dir
		}
		i := len(dir) - 1
		for i > 0 && dir[i] != '/' {
			i--
		}
		dir = dir[:i]
	}
	return "."
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment: real router, real engines, real test
// database, fake payment provider.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := NewFakeCryptoPay(t)
	client := provider.NewCryptoPayClient(fake.URL(), "test-token", "USDT")

	userRepo := repository.NewUserRepository()
	fightRepo := repository.NewFightRepository()
	dealRepo := repository.NewDealRepository()
	waitRepo := repository.NewInvoiceWaitRepository()
	transferRepo := repository.NewTransferLogRepository()

	jwtMgr := auth.NewJWTManager(TestJWTSecret, 24*time.Hour, time.Hour)
	circuit := guard.NewCircuitBreaker(100, time.Minute)
	notifier := notify.NewKafkaNotifier(infra.NewKafkaProducer("", false, logger), logger)

	engine := matchmaking.NewEngine(pool, client, circuit,
		userRepo, fightRepo, dealRepo, waitRepo, transferRepo, notifier, logger)

	rec := reconciler.New(pool, waitRepo, client, engine, circuit, time.Second, logger)

	settle := settlement.NewEngine(pool, client, circuit,
		userRepo, dealRepo, transferRepo, notifier,
		TestFeePct, 100, time.Second, logger)

	router := app.NewRouter(app.RouterDeps{
		Pool:          pool,
		JWTMgr:        jwtMgr,
		Engine:        engine,
		Watcher:       noopWatcher{},
		Fights:        fightRepo,
		Logger:        logger,
		ServiceAPIKey: "service-key",
		AdminAPIKey:   "admin-key",
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:     server,
		Pool:       pool,
		JWTMgr:     jwtMgr,
		Engine:     engine,
		Reconciler: rec,
		Settlement: settle,
		CryptoPay:  fake,
		Users:      userRepo,
		Fights:     fightRepo,
		Deals:      dealRepo,
		Waits:      waitRepo,
		Transfers:  transferRepo,
		t:          t,
	}

	t.Cleanup(func() {
		server.Close()
		fake.Close()
		env.CleanAll()
	})

	env.CleanAll()
	return env
}

// noopWatcher disables the background fast path so tests drive reconciliation
// explicitly through Reconciler.Tick.
type noopWatcher struct{}

func (noopWatcher) WatchInvoice(context.Context, int64) {}
