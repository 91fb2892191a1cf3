// Package server initializes and runs the main application server.
// It wires the table store backend, the document store repositories and
// the domain services, handles graceful shutdown, and starts the HTTP
// endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/penter405/cubetimer-backend/internal/logging"
	"github.com/penter405/cubetimer-backend/internal/server/auth"
	"github.com/penter405/cubetimer-backend/internal/server/config"
	"github.com/penter405/cubetimer-backend/internal/server/directory"
	"github.com/penter405/cubetimer-backend/internal/server/httpapi"
	"github.com/penter405/cubetimer-backend/internal/server/leaderboard"
	"github.com/penter405/cubetimer-backend/internal/server/migration"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/counters"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/pending"
	"github.com/penter405/cubetimer-backend/internal/server/repositories/users"
	"github.com/penter405/cubetimer-backend/internal/server/tablestore"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler http.Handler

	// closers run in reverse order during shutdown.
	closers []func(ctx context.Context) error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	app := &App{config: cfg, logger: logger}

	store, err := app.initTableStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("table store init error: %w", err)
	}

	mongoClient, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo init error: %w", err)
	}
	app.closers = append(app.closers, mongoClient.Disconnect)
	db := mongoClient.Database(cfg.MongoDatabase)

	userRepo := users.NewMongoRepository(db)
	pendingRepo := pending.NewMongoRepository(db)
	counterRepo := counters.NewMongoRepository(db)

	dir := directory.NewService(store, logger)
	board := leaderboard.NewService(store, pendingRepo, userRepo, logger)
	migrator := migration.NewEngine(store, userRepo, counterRepo, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.SecretKey))

	handlers := httpapi.NewHandlers(dir, board, migrator, verifier, logger)
	app.handler = httpapi.NewRouter(handlers, cfg.CORSAllowedOrigins)

	return app, nil
}

func (app *App) initTableStore(ctx context.Context) (tablestore.Store, error) {
	switch app.config.StoreBackend {
	case "sheets":
		svc, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(app.config.GoogleCredentialsFile))
		if err != nil {
			return nil, fmt.Errorf("sheets client: %w", err)
		}
		return tablestore.NewSheets(svc, app.config.SpreadsheetID), nil

	case "postgres":
		db, err := sql.Open("pgx", app.config.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return db.Close() })

		store := tablestore.NewPostgres(db)
		if err := store.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return store, nil

	case "memory":
		return provisionMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", app.config.StoreBackend)
	}
}

// provisionMemoryStore creates the sheet layout the production
// spreadsheet carries, sized for local development.
func provisionMemoryStore() *tablestore.Memory {
	m := tablestore.NewMemory()
	m.CreateSheet(directory.UserMapSheet, 10*directory.UserMapFields)
	m.CreateSheet(directory.CountsSheet, 10*directory.CountsFields)
	m.CreateSheet(directory.TotalSheet, 2)
	for _, sheet := range leaderboard.WindowSheets {
		m.CreateSheet(sheet, 6)
	}
	m.CreateSheet(leaderboard.ViewSheet, 5)
	m.CreateSheet(leaderboard.ViewUniqueSheet, 4)
	return m
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "err", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "shutdown error", "err", err)
		}
	}
}
