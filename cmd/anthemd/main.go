package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/febintjames/ai-powered-uae-national-anthem/internal/api"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/config"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/db"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/flow"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate/gemini"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate/mockgen"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/generate/wavespeed"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/job"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/logging"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/media"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/pipeline"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/probe"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/quiz"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/request"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/session"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/tracker"
	"github.com/febintjames/ai-powered-uae-national-anthem/pkg/version"
)

var (
	configPath = flag.String("config", "configs/anthem.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Secrets come from .env on the kiosk device; absence is fine.
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Anthem kiosk started", "version", version.Version, "mode", pipeline.Describe(cfg.Pipeline.Mock))

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()

	tr := tracker.New()
	reqClient := request.New(tr, request.Options{
		Retries:   cfg.Request.Retries,
		Timeout:   time.Duration(cfg.Request.Timeout),
		BaseDelay: time.Duration(cfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(cfg.Request.Backoff.MaxDelay),
	})

	mediaStore, err := media.NewStore(cfg.Media.Root, cfg.Media.PublicBaseURL, int64(cfg.Media.MaxUploadMB)<<20, reqClient)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	stages, err := initStages(ctx, cfg, reqClient, mediaStore)
	if err != nil {
		return err
	}

	bank, err := quiz.Load(cfg.Quiz.BankPath)
	if err != nil {
		return fmt.Errorf("failed to load question bank: %w", err)
	}
	slog.Info("Question bank loaded", "questions", bank.Len())

	if err := probe.AnalyzeResults(probe.Run(ctx, startupProbes(cfg))); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	jobs := job.NewStore()
	hub := api.NewHub()
	defer hub.Close()

	// Every job mutation goes out on the event stream; terminal states are
	// recorded for the daily outcome totals.
	jobs.OnTransition(func(j *job.Job) {
		hub.Broadcast(api.Event{Type: "job", Data: j})
		if j.State.Terminal() {
			outcome := db.JobOutcome{
				JobID:     j.ID.String(),
				SessionID: j.SessionID,
				Avatar:    j.AvatarSelector,
				State:     string(j.State),
				Duration:  j.UpdatedAt.Sub(j.CreatedAt),
			}
			if j.ErrorDetail != nil {
				outcome.ErrorKind = string(j.ErrorDetail.Kind)
			}
			if err := dbConn.SaveJobOutcome(outcome); err != nil {
				slog.Error("Failed to record job outcome", "job", j.ID, "error", err)
			}
		}
	})

	driver := pipeline.New(jobs, stages, mediaStore, time.Duration(cfg.Pipeline.StageTimeout))

	pollOpts := job.PollOptions{
		Interval: time.Duration(cfg.Poll.Interval),
		Timeout:  time.Duration(cfg.Poll.Timeout),
	}
	sessions := session.NewManager(time.Duration(cfg.Session.TTL), func(id string) *flow.Controller {
		c := flow.NewController(id, jobs, pollOpts)
		c.OnPhaseChange(func(snap flow.Snapshot) {
			hub.Broadcast(api.Event{Type: "session", Data: snap})
		})
		return c
	})

	// Background sweeps keep the day's state bounded.
	go sessions.RunSweeper(ctx, time.Duration(cfg.Session.SweepInterval))
	go runJobSweeper(ctx, jobs, time.Duration(cfg.Jobs.Retention), time.Duration(cfg.Jobs.SweepInterval))

	// Server
	jobH := api.NewJobHandler(ctx, jobs, mediaStore, driver, sessions)
	quizH := api.NewQuizHandler(bank, jobs, sessions, dbConn)
	sessH := api.NewSessionHandler(ctx, sessions, jobs)
	statsH := api.NewStatsHandler(tr, jobs, sessions, dbConn, hub, pipeline.Describe(cfg.Pipeline.Mock))

	placeholderDir := filepath.Join(cfg.Pipeline.AssetsDir, "placeholder")
	srv := api.NewServer(cfg.Server.Addr, jobH, quizH, sessH, statsH, hub, mediaStore.ResultRoot(), placeholderDir, cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return runServerLifecycle(ctx, srv, quit)
}

// initStages selects the generation backends. The mock toggle is read once
// here; everything downstream of the stage boundary is identical in both
// modes.
func initStages(ctx context.Context, cfg *config.Config, reqClient *request.Client, mediaStore *media.Store) (pipeline.Stages, error) {
	if cfg.Pipeline.Mock {
		slog.Warn("MOCK MODE: generation stages are placeholders")
		mock := mockgen.New(time.Duration(cfg.Pipeline.MockStages.ImageDelay), time.Duration(cfg.Pipeline.MockStages.VideoDelay))
		return pipeline.Stages{Image: mock, Video: mock}, nil
	}

	imageClient, err := gemini.NewClient(ctx, cfg.Pipeline.Gemini.Key, cfg.Pipeline.Gemini.Model, cfg.Pipeline.AssetsDir, mediaStore)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("failed to initialize image stage: %w", err)
	}

	videoClient, err := wavespeed.NewClient(reqClient, wavespeed.Config{
		BaseURL:      cfg.Pipeline.WaveSpeed.BaseURL,
		APIKey:       cfg.Pipeline.WaveSpeed.Key,
		Model:        cfg.Pipeline.WaveSpeed.Model,
		AssetsDir:    cfg.Pipeline.AssetsDir,
		PollInterval: time.Duration(cfg.Pipeline.WaveSpeed.PollInterval),
	}, mediaStore)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("failed to initialize video stage: %w", err)
	}

	return pipeline.Stages{Image: imageClient, Video: videoClient}, nil
}

// startupProbes verifies the kiosk can actually serve a visitor: every
// avatar needs its dress image and anthem audio on disk. Mock mode skips the
// asset checks since the placeholder stages never read them.
func startupProbes(cfg *config.Config) []probe.Probe {
	if cfg.Pipeline.Mock {
		return nil
	}

	var probes []probe.Probe
	for _, a := range generate.Avatars() {
		assets, ok := generate.AssetsFor(a)
		if !ok {
			continue
		}
		for _, rel := range []string{assets.DressImage, assets.AnthemAudio} {
			path := filepath.Join(cfg.Pipeline.AssetsDir, rel)
			probes = append(probes, probe.Probe{
				Name:     fmt.Sprintf("asset %s", rel),
				Critical: true,
				Check: func(ctx context.Context) error {
					_, err := os.Stat(path)
					return err
				},
			})
		}
	}
	return probes
}

func runJobSweeper(ctx context.Context, jobs *job.Store, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs.Sweep(retention)
		}
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
