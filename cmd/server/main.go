package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/manga-lockstep/backend/internal/catalog"
	"github.com/manga-lockstep/backend/internal/config"
	"github.com/manga-lockstep/backend/internal/frontend"
	"github.com/manga-lockstep/backend/internal/images"
	"github.com/manga-lockstep/backend/internal/viewing"
	"github.com/manga-lockstep/backend/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	devMode := flag.Bool("dev", false, "Development mode (serve frontend from filesystem)")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	manifest := flag.String("manifest", "", "Override collection manifest path")
	dbPath := flag.String("db", "", "Override catalog database path")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatal().Err(err).Msg("invalid environment")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *manifest != "" {
		cfg.Catalog.Manifest = *manifest
	}
	if *dbPath != "" {
		cfg.Catalog.Database = *dbPath
	}

	setupLogging(cfg.Log)
	if envErr != nil && !os.IsNotExist(envErr) {
		log.Warn().Err(envErr).Msg("could not load .env file")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	col, err := loadCollection(ctx, cfg.Catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load collection")
	}
	log.Info().Int("items", col.Len()).Int("pages", col.TotalPages()).Msg("collection loaded")

	frontendDir := ""
	if *devMode {
		cwd, _ := os.Getwd()
		frontendDir = filepath.Join(cwd, "internal", "frontend", "static")
		log.Info().Str("dir", frontendDir).Msg("serving frontend from disk")
	}
	fe, err := frontend.New(frontendDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load frontend")
	}

	state := viewing.NewState(col)
	server := ws.NewServer(state, images.NewResolver(col), fe, ws.SessionConfig{
		WriteTimeout:   cfg.Session.WriteTimeout,
		SendBuffer:     cfg.Session.SendBuffer,
		MaxMessageSize: cfg.Session.MaxMessageSize,
	}, cfg.Server.AllowedOrigins)

	go ws.NewHeartbeat(state, cfg.Session.HeartbeatInterval).Run(ctx)

	if err := server.ListenAndServe(ctx, cfg.Addr(), cfg.Server.ShutdownGrace); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// loadCollection reads the manifest when one is configured, otherwise the
// latest (or configured) group from the catalog database.
func loadCollection(ctx context.Context, cfg config.CatalogConfig) (*catalog.Collection, error) {
	if cfg.Manifest != "" {
		return catalog.LoadManifest(cfg.Manifest)
	}
	return catalog.LoadDB(ctx, catalog.DBSource{
		Path:    cfg.Database,
		GroupID: cfg.Group,
		BaseDir: cfg.BaseDir,
	})
}
