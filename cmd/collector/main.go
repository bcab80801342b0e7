package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"celeb-dna-collector/analyzer"
	"celeb-dna-collector/batch"
	"celeb-dna-collector/collector"
	"celeb-dna-collector/config"
	"celeb-dna-collector/dna"
	"celeb-dna-collector/metrics"
	"celeb-dna-collector/notify"
	"celeb-dna-collector/pipeline"
	"celeb-dna-collector/ratelimit"
	"celeb-dna-collector/report"
	"celeb-dna-collector/scheduler"
	"celeb-dna-collector/storage"
	"celeb-dna-collector/uploader"
)

const chatIDSetting = "chat_id"

type options struct {
	configPath   string
	subjects     string
	all          bool
	skipDownload bool
	skipUpload   bool
	outputDir    string
	verbose      bool
	schedule     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("collector", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "./config.yaml", "path to the YAML config file")
	fs.StringVar(&o.subjects, "subject", "", "comma-separated subject ids to process")
	fs.BoolVar(&o.all, "all", false, "process every subject in the catalogue")
	fs.BoolVar(&o.skipDownload, "skip-download", false, "use frames already on disk")
	fs.BoolVar(&o.skipUpload, "skip-upload", false, "do not upsert profiles to Supabase")
	fs.StringVar(&o.outputDir, "output-dir", "", "override output_dir from config")
	fs.BoolVar(&o.verbose, "verbose", false, "log at debug level")
	fs.BoolVar(&o.schedule, "schedule", false, "run daily at schedule_time until interrupted")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if o.all == (o.subjects != "") {
		return options{}, errors.New("exactly one of --subject or --all is required")
	}
	return o, nil
}

// selectSubjects resolves the requested ids against the catalogue, keeping
// the order they were given in.
func selectSubjects(cfg config.Config, o options) ([]pipeline.Subject, error) {
	var picked []config.Subject
	if o.all {
		picked = cfg.Subjects
	} else {
		seen := make(map[string]bool)
		for _, id := range strings.Split(o.subjects, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			s, ok := cfg.Subject(id)
			if !ok {
				return nil, fmt.Errorf("unknown subject %q (available: %s)", id, strings.Join(cfg.SubjectIDs(), ", "))
			}
			seen[id] = true
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		return nil, errors.New("no subjects selected")
	}

	out := make([]pipeline.Subject, len(picked))
	for i, s := range picked {
		out[i] = pipeline.Subject{
			ID:            s.ID,
			Name:          s.Name,
			Category:      s.Category,
			SignatureLook: s.SignatureLook,
			Queries:       s.Queries,
		}
	}
	return out, nil
}

func logLevel(name string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func main() {
	// Structured JSON logging to stdout
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel, opts.verbose)})))

	if err := cfg.Validate(opts.skipUpload); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if opts.schedule && cfg.ScheduleTime == "" {
		slog.Error("invalid config", "error", "schedule_time is required with --schedule")
		os.Exit(1)
	}

	subjects, err := selectSubjects(cfg, opts)
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}
	slog.Info("config loaded",
		"subjects", len(subjects),
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
		"output_dir", cfg.OutputDir,
		"skip_download", opts.skipDownload,
		"skip_upload", opts.skipUpload,
	)

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("storage initialized", "db_path", cfg.DBPath)

	recorder := metrics.New()

	// Initialize components
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	limiter := ratelimit.New(cfg.RateLimitPerMinute, ratelimit.WithWaitFunc(func(wait time.Duration, inWindow int) {
		slog.Info("rate limit reached, waiting", "wait", wait, "in_window", inWindow)
		recorder.LimiterWait(wait, inWindow)
	}))
	processor := batch.NewProcessor(
		analyzer.NewAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel, httpClient),
		limiter,
		recorder,
	)

	deps := pipeline.Deps{
		Processor: processor,
		Storage:   &storageAdapter{store: store},
		Observer:  recorder,
	}
	if !opts.skipDownload {
		deps.Collector = collector.New(collector.Options{
			VideosPerQuery: cfg.VideosPerQuery,
			FrameInterval:  cfg.FrameInterval(),
			DownloadDelay:  cfg.DownloadDelay(),
		})
	}
	if !opts.skipUpload {
		deps.Uploader = uploader.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable, httpClient)
	}
	runner := pipeline.NewRunner(deps, pipeline.Config{OutputDir: cfg.OutputDir})

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		slog.Info("metrics server started", "addr", cfg.MetricsAddr)
	}

	var (
		guard runGuard
		bot   *notify.Bot
	)
	execute := func() {
		summary, err := runner.Run(ctx, subjects)
		if summary != nil {
			finish(summary, recorder, bot)
		}
		if err != nil {
			slog.Error("run stopped", "error", err)
		}
	}
	// Both the cron entry and /run go through the guard so two runs never overlap.
	start := func() bool { return guard.start(execute) }

	var trigger func() bool
	if opts.schedule {
		trigger = start
	}
	bot = newNotifier(ctx, cfg, store, subjects, trigger)

	if opts.schedule {
		sched, err := scheduler.New(cfg.Timezone)
		if err != nil {
			slog.Error("failed to create scheduler", "error", err)
			os.Exit(1)
		}
		err = sched.Schedule(cfg.ScheduleTime, func() {
			if !start() {
				slog.Warn("previous run still in progress, skipping scheduled run")
			}
		})
		if err != nil {
			slog.Error("failed to schedule run", "error", err)
			os.Exit(1)
		}
		sched.Start()
		slog.Info("scheduler started", "schedule_time", cfg.ScheduleTime, "timezone", cfg.Timezone, "next", sched.Next())

		<-ctx.Done()
		slog.Info("received signal, shutting down")
		sched.Stop()
		guard.wait()
	} else {
		guard.start(execute)
		guard.wait()
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	slog.Info("shutdown complete")
}

// runGuard runs at most one function at a time in the background.
type runGuard struct {
	running atomic.Bool
	wg      sync.WaitGroup
}

// start runs fn in a goroutine unless a previous fn is still running, in
// which case it reports false.
func (g *runGuard) start(fn func()) bool {
	if !g.running.CompareAndSwap(false, true) {
		return false
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.running.Store(false)
		fn()
	}()
	return true
}

// wait blocks until the running fn, if any, returns.
func (g *runGuard) wait() {
	g.wg.Wait()
}

// finish reports a completed (or interrupted) run. bot may be nil.
func finish(s *pipeline.Summary, recorder *metrics.Recorder, bot *notify.Bot) {
	recorder.RunFinished(s.Succeeded, s.Duration(), s.FinishedAt)
	if err := report.Write(os.Stderr, s); err != nil {
		slog.Error("failed to write report", "error", err)
	}
	if bot == nil {
		return
	}
	if _, err := bot.NotifyRun(s); err != nil {
		slog.Error("failed to send run summary", "error", err)
	}
}

// newNotifier connects to Telegram when a token is configured. A chat
// registered with /start earlier takes precedence over telegram_chat_id.
// Telegram problems are logged and the run continues without notifications.
func newNotifier(ctx context.Context, cfg config.Config, store *storage.Store, subjects []pipeline.Subject, trigger func() bool) *notify.Bot {
	if cfg.TelegramToken == "" {
		return nil
	}

	chatID := cfg.TelegramChatID
	if saved, _ := store.GetSetting(chatIDSetting); saved != "" {
		if id, err := strconv.ParseInt(saved, 10, 64); err == nil {
			chatID = id
		}
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to connect to telegram, notifications disabled", "error", err)
		return nil
	}

	bot := notify.New(api, chatID, notify.Deps{
		Trigger:  trigger,
		Subjects: subjects,
		SaveChatID: func(id int64) error {
			return store.SetSetting(chatIDSetting, strconv.FormatInt(id, 10))
		},
	})

	// Commands are only served while the process stays up.
	if trigger != nil {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := api.GetUpdatesChan(u)
		go func() {
			<-ctx.Done()
			api.StopReceivingUpdates()
		}()
		go bot.Listen(ctx, updates)
	}

	slog.Info("telegram connected", "bot", api.Self.UserName, "chat_id", chatID)
	return bot
}

// --- Adapters to bridge package types ---

// storageAdapter bridges storage.Store to pipeline.Storage
type storageAdapter struct {
	store *storage.Store
}

func (a *storageAdapter) StartRun(runID string, total int) error {
	return a.store.StartRun(runID, total)
}

func (a *storageAdapter) FinishRun(runID string, succeeded, total int) error {
	return a.store.FinishRun(runID, succeeded, total)
}

func (a *storageAdapter) RecordSubjectResult(runID string, r pipeline.SubjectResult) error {
	rec := storage.SubjectResult{
		RunID:          runID,
		SubjectID:      r.SubjectID,
		Status:         r.Status,
		FramesAnalyzed: r.FramesAnalyzed,
		TotalFrames:    r.TotalFrames,
		Uploaded:       r.Uploaded,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return a.store.RecordSubjectResult(rec)
}

func (a *storageAdapter) UpsertProfile(runID string, p *dna.Profile) error {
	return a.store.UpsertProfile(runID, p)
}
