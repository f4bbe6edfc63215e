// Entry point for the pinup review server: login, review pages, prototype
// serving with overlay injection, comment API, MCP tools and snapshots.
package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pinup/auth"
	"github.com/hazyhaar/pinup/comments"
	"github.com/hazyhaar/pinup/dbopen"
	"github.com/hazyhaar/pinup/internal/browser"
	"github.com/hazyhaar/pinup/projects"
	"github.com/hazyhaar/pinup/prototype"
	"github.com/hazyhaar/pinup/review"
	"github.com/hazyhaar/pinup/shield"
	"github.com/hazyhaar/pinup/snapshot"
	"github.com/hazyhaar/pinup/watch"
)

const usage = `usage:
  pinup                              serve (configured from the environment)
  pinup hash-password <password>     print a bcrypt hash for ADMIN_PASSWORD_HASH
  pinup maintenance on|off [message] switch maintenance mode
`

type config struct {
	port          string
	dbPath        string
	projectsFile  string
	prototypesDir string
	overlayDir    string
	secret        []byte
	adminHash     string
	mcpToken      string
	chrome        bool
	chromeURL     string
	snapshotBase  string
	secureCookies bool
	logLevel      string
}

func loadConfig() (config, error) {
	dataDir := env("DATA_DIR", "data")
	cfg := config{
		port:          env("PORT", "3000"),
		dbPath:        env("DB_PATH", filepath.Join(dataDir, "pinup.db")),
		projectsFile:  env("PROJECTS_FILE", "projects.yaml"),
		prototypesDir: env("PROTOTYPES_DIR", "prototypes"),
		overlayDir:    env("OVERLAY_DIR", ""),
		adminHash:     env("ADMIN_PASSWORD_HASH", ""),
		mcpToken:      env("MCP_TOKEN", ""),
		chromeURL:     env("CHROME_URL", ""),
		logLevel:      env("LOG_LEVEL", "info"),
	}
	cfg.chrome, _ = strconv.ParseBool(env("CHROME_ENABLED", "false"))
	cfg.secureCookies, _ = strconv.ParseBool(env("SECURE_COOKIES", "false"))
	cfg.snapshotBase = env("SNAPSHOT_BASE_URL", "http://127.0.0.1:"+cfg.port)

	secretInput := os.Getenv("SESSION_SECRET")
	if secretInput == "" {
		return cfg, errors.New("SESSION_SECRET is required")
	}
	// Derive a 32-byte signing key (satisfies horosafe.MinSecretLen).
	sum := sha256.Sum256([]byte(secretInput))
	cfg.secret = sum[:]
	return cfg, nil
}

func main() {
	if len(os.Args) > 1 {
		if err := command(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.logLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("pinup", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// command runs a one-shot subcommand.
func command(args []string) error {
	switch args[0] {
	case "hash-password":
		if len(args) != 2 {
			return errors.New("hash-password takes exactly one argument")
		}
		h, err := projects.HashPassword(args[1])
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	case "maintenance":
		if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
			return errors.New("maintenance takes on or off")
		}
		var msg string
		if len(args) > 2 {
			msg = args[2]
		}
		db, err := openDB(env("DB_PATH", filepath.Join(env("DATA_DIR", "data"), "pinup.db")))
		if err != nil {
			return err
		}
		defer db.Close()
		mm := shield.NewMaintenanceMode(db)
		if err := mm.Set(context.Background(), args[1] == "on", msg); err != nil {
			return err
		}
		fmt.Printf("maintenance %s\n", args[1])
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func openDB(path string) (*sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := shield.Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// app holds the wired components behind the router.
type app struct {
	cfg       config
	db        *sql.DB
	projects  *projects.Registry
	store     *comments.Store
	api       *comments.API
	prototype *prototype.Server
	review    *review.Server
	hub       *review.Hub
	watcher   *watch.Watcher
	stack     []func(http.Handler) http.Handler
	rl        *shield.RateLimiter
	mm        *shield.MaintenanceMode
	logger    *slog.Logger
}

func newApp(cfg config, db *sql.DB, reg *projects.Registry, snaps comments.Snapshotter, logger *slog.Logger) (*app, error) {
	store, err := comments.New(comments.Config{DB: db, Logger: logger})
	if err != nil {
		return nil, err
	}
	protoSrv := prototype.New(prototype.Config{
		Projects:   reg,
		Dir:        cfg.prototypesDir,
		OverlayDir: cfg.overlayDir,
		Logger:     logger,
	})
	api := comments.NewAPI(comments.APIConfig{
		Store:     store,
		Projects:  reg,
		Documents: protoSrv.Document,
		Snapshots: snaps,
		Logger:    logger,
	})
	stack, mm, rl := shield.Stack(db)
	hub := review.NewHub()
	reviewSrv := review.NewServer(review.ServerConfig{
		Projects:      reg,
		Store:         store,
		Secret:        cfg.secret,
		SecureCookies: cfg.secureCookies,
		LoginLimit:    rl.Middleware,
		Hub:           hub,
		Logger:        logger,
	})
	watcher := watch.New(store.Revision, watch.Options{
		Interval: time.Second,
		Debounce: 250 * time.Millisecond,
		Logger:   logger,
	})
	return &app{
		cfg:       cfg,
		db:        db,
		projects:  reg,
		store:     store,
		api:       api,
		prototype: protoSrv,
		review:    reviewSrv,
		hub:       hub,
		watcher:   watcher,
		stack:     stack,
		rl:        rl,
		mm:        mm,
		logger:    logger,
	}, nil
}

func (a *app) handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range a.stack {
		r.Use(mw)
	}
	r.Use(auth.Middleware(a.cfg.secret))

	r.Get("/healthz", a.handleHealth)

	if a.cfg.mcpToken != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pinup", Version: "1.0.0"}, nil)
		a.api.RegisterMCP(mcpSrv)
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.With(requireToken(a.cfg.mcpToken)).Handle("/mcp", h)
	}

	r.Route("/api", func(r chi.Router) {
		a.review.AuthRoutes(r)
		a.api.Routes(r)
	})
	a.prototype.Routes(r)
	a.review.Routes(r)
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"projects":    len(a.projects.IDs()),
		"sessions":    a.hub.Len(),
		"watch":       a.watcher.Stats(),
		"maintenance": a.mm.Status(),
	})
}

// requireToken guards operator endpoints with a static bearer token.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func run(ctx context.Context, cfg config) error {
	logger := slog.Default()

	reg, err := projects.Load(cfg.projectsFile)
	if err != nil {
		return err
	}
	if err := reg.SetAdminHash(cfg.adminHash); err != nil {
		return err
	}
	if cfg.adminHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin logins disabled")
	}

	db, err := openDB(cfg.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var snaps comments.Snapshotter
	if cfg.chrome {
		mgr := browser.NewManager(browser.Config{RemoteURL: cfg.chromeURL, Logger: logger})
		defer mgr.Close()
		if err := mgr.Start(ctx); err != nil {
			logger.Warn("chrome unavailable, snapshots will retry on demand", "error", err)
		}
		snaps = &chromeSnapshots{
			renderer: snapshot.New(mgr, logger),
			base:     cfg.snapshotBase,
			secret:   cfg.secret,
		}
	}

	a, err := newApp(cfg, db, reg, snaps, logger)
	if err != nil {
		return err
	}
	a.rl.StartReloader(ctx.Done())
	a.mm.StartReloader(ctx.Done())

	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           a.handler(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.watcher.Run(gctx, a.hub.Notify)
		return nil
	})
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.port, "projects", reg.IDs(), "snapshots", cfg.chrome)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
