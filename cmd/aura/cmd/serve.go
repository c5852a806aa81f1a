package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/auralabs/aura/internal/artifacts"
	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/database"
	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/events"
	internalhttp "github.com/auralabs/aura/internal/http"
	"github.com/auralabs/aura/internal/http/handlers"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/pipeline"
	"github.com/auralabs/aura/internal/providers"
	"github.com/auralabs/aura/internal/queue"
	"github.com/auralabs/aura/internal/repository"
	"github.com/auralabs/aura/internal/runner"
	"github.com/auralabs/aura/internal/validate"
	"github.com/auralabs/aura/internal/version"
	"github.com/auralabs/aura/pkg/httpclient"
)

// historyRetention is how long terminal jobs stay in the history database
// before the scheduled sweep prunes them.
const historyRetention = 30 * 24 * time.Hour

// stopTimeout bounds the drain of running jobs during shutdown.
const stopTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aura server",
	Long: `Start the aura HTTP server and job workers.

The server provides:
- REST API for submitting and managing generation and export jobs
- Server-sent events for per-job progress
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("output-dir", "", "Directory for finished videos and artifacts")
	serveCmd.Flags().Bool("offline", false, "Forbid all network providers")
}

// applyServeFlags overrides config values with explicitly set CLI flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Storage.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if cmd.Flags().Changed("offline") {
		cfg.Providers.Offline, _ = cmd.Flags().GetBool("offline")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)
	initLogging(cfg)
	logger := slog.Default()

	// Storage and encoder plumbing.
	store, err := artifacts.NewStore(cfg.Storage.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("initializing artifact store: %w", err)
	}
	detector := encoder.NewDetector(cfg.Encoder)
	supervisor := encoder.NewSupervisor(cfg.Encoder.KillGrace, logger)

	// Job history database.
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	history := repository.NewHistory(db, logger)

	// Providers and deterministic resolution.
	registry := buildRegistry(cfg, logger)
	resolver := providers.NewResolver(registry).
		WithLocalSD(cfg.Providers.LocalSD.Host != "")
	availability := providers.NewAvailabilityCache(cfg.Providers.AvailabilityTTL)

	// Pipeline stages and the worker pool.
	renderStage := pipeline.NewRenderStage(supervisor, detector)
	generation := []pipeline.Stage{
		pipeline.NewScriptStage(registry),
		pipeline.NewNarrationStage(registry),
		pipeline.NewVisualsStage(registry),
		renderStage,
	}
	exportStage := pipeline.NewExportStage(renderStage)

	jobRunner := runner.New(resolver, store, cfg.Jobs, cfg.Providers.Offline, logger,
		generation, exportStage)

	validator := validate.New(detector, cfg.Encoder, cfg.Storage)
	q := queue.New(cfg.Jobs, validator, resolver, cfg.Providers.Offline, jobRunner, logger)
	// Every terminal job is archived to the history database so it survives
	// in-memory retention eviction and restarts.
	q.OnTerminal(func(job *models.Job) {
		if err := history.Archive(job); err != nil {
			logger.Warn("archiving job history",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
		}
	})
	q.Start()

	streamer := events.NewStreamer(q, logger)

	// Scheduled history sweep. The cron expression is 6-field with seconds.
	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(cfg.Storage.RetentionCron, func() {
		pruned, err := history.PruneOlderThan(time.Now().Add(-historyRetention))
		if err != nil {
			logger.Warn("history sweep failed", slog.String("error", err.Error()))
			return
		}
		if pruned > 0 {
			logger.Info("pruned job history", slog.Int64("pruned", pruned))
		}
	}); err != nil {
		return fmt.Errorf("scheduling retention sweep: %w", err)
	}
	scheduler.Start()

	// HTTP server and handlers.
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	triggerShutdown := func() {
		stopOnce.Do(func() { close(stopCh) })
	}

	handlers.NewJobHandler(q, store).Register(server.API())
	handlers.NewExportHandler(q).Register(server.API())
	handlers.NewSystemHandler(detector, q, registry, availability,
		cfg.Providers.Offline, version.Version, triggerShutdown).Register(server.API())
	server.RegisterEventStream(streamer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		triggerShutdown()
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("aura server started",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
		slog.Bool("offline", cfg.Providers.Offline),
		slog.Int("workers", cfg.Jobs.WorkerCount()),
	)

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-stopCh:
	}

	// Shutdown order: stop admissions and drain the queue, then kill any
	// encoder children the drain left behind, then flush artifact state.
	scheduler.Stop()
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Warn("server shutdown", slog.String("error", err.Error()))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	interrupted := q.Stop(stopCtx)
	killed := supervisor.KillAll()
	store.Flush()

	logger.Info("aura server stopped",
		slog.Int("interrupted_jobs", interrupted),
		slog.Int("killed_processes", killed),
	)
	return nil
}

// buildRegistry registers every provider the configuration enables. The
// terminal fallbacks (RuleBased, Null, Slideshow) are always present so a
// machine with nothing but ffmpeg still produces a video.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *providers.Registry {
	registry := providers.NewRegistry()

	registry.RegisterLLM(providers.NewRuleBasedLLM())
	registry.RegisterTTS(providers.NewNullTTS())
	registry.RegisterVisuals(providers.NewSlideshowVisuals())

	if cfg.Providers.Ollama.Host != "" {
		client := providerClient(cfg, cfg.Jobs.Timeouts.Script)
		registry.RegisterLLM(providers.NewOllamaLLM(cfg.Providers.Ollama, client))
		logger.Info("registered provider", slog.String("provider", providers.NameOllama))
	}

	if cfg.Providers.Stock.APIKey != "" && !cfg.Providers.Offline {
		client := providerClient(cfg, cfg.Jobs.Timeouts.VisualsImage)
		registry.RegisterVisuals(providers.NewStockVisuals(cfg.Providers.Stock, client))
		logger.Info("registered provider", slog.String("provider", providers.NameStock))
	}

	return registry
}

// providerClient builds an outbound client for a provider serving the given
// stage. The timeout floor keeps the stage context firing before the
// transport, so a slow local model is never aborted by the client.
func providerClient(cfg *config.Config, stageTimeout time.Duration) *http.Client {
	base := httpclient.New(httpclient.Config{
		Timeout:   cfg.Providers.ClientMargin,
		UserAgent: version.UserAgent(),
	})
	return httpclient.EnsureTimeout(base, cfg.Providers.ClientTimeout(stageTimeout))
}
