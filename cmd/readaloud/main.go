package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"readaloud/internal/api"
	"readaloud/pkg/article"
	"readaloud/pkg/audio"
	"readaloud/pkg/config"
	"readaloud/pkg/db"
	"readaloud/pkg/db/maintenance"
	"readaloud/pkg/endpoint"
	"readaloud/pkg/logging"
	"readaloud/pkg/media"
	"readaloud/pkg/metrics"
	"readaloud/pkg/model"
	"readaloud/pkg/player"
	"readaloud/pkg/probe"
	"readaloud/pkg/request"
	"readaloud/pkg/store"
	"readaloud/pkg/synth"
	"readaloud/pkg/tracker"
	"readaloud/pkg/version"
)

const defaultConfigPath = "configs/readaloud.yaml"

var (
	initConfig  = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath  = flag.String("config", defaultConfigPath, "Path to the config file")
	articleRef  = flag.String("article", "", "Article to narrate: an http(s) URL or a local HTML file")
	slugFlag    = flag.String("slug", "", "Article slug sent with synthesis requests (default: from the article)")
	langFlag    = flag.String("lang", "", "Narration language: en, hi or ta (default: last used)")
	serveFlag   = flag.Bool("serve", false, "Serve the player API instead of playing once and exiting")
	refreshFlag = flag.Bool("refresh", false, "Ignore any cached result and synthesize again")
)

// options are the command-line choices run acts on.
type options struct {
	ConfigPath string
	Article    string
	Slug       string
	Language   string
	Serve      bool
	Refresh    bool
}

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	opts := options{
		ConfigPath: *configPath,
		Article:    *articleRef,
		Slug:       *slugFlag,
		Language:   *langFlag,
		Serve:      *serveFlag,
		Refresh:    *refreshFlag,
	}
	if opts.Article == "" && flag.NArg() > 0 {
		opts.Article = flag.Arg(0)
	}

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.Article == "" {
		return errors.New("no article given; pass -article <url|file>")
	}

	appCfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()
	synth.SetLogPath(appCfg.Log.TTS.Path)

	slog.Info("ReadAloud Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.DB.HistoryRetention.Std()); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(tr, request.Options{
		HeaderTimeout: appCfg.Request.Timeout.Std(),
		Retries:       appCfg.Request.Retries,
		UserAgent:     appCfg.Request.UserAgent,
	})

	doc, err := article.Load(ctx, opts.Article, reqClient)
	if err != nil {
		return err
	}
	slog.Info("Article loaded", "title", doc.Title, "slug", doc.Slug, "origin", doc.Origin)

	origin := appCfg.TTS.Origin
	if origin == "" {
		origin = doc.Origin
	}
	candidates := endpoint.Resolve(endpoint.Config{
		Override:     appCfg.TTS.Endpoint,
		UseDevProxy:  appCfg.TTS.UseDevProxy,
		DevProxyPort: appCfg.TTS.DevProxyPort,
		DevPorts:     appCfg.TTS.DevPorts,
		Fallbacks:    appCfg.TTS.Fallbacks,
	}, endpoint.Runtime{Origin: origin})
	slog.Debug("Synthesis endpoints resolved", "candidates", candidates)

	m := metrics.New(nil)
	caller := newCaller(ctx, reqClient, origin, m, st)

	registry := media.NewRegistry()
	audioMgr := audio.New(registry, &appCfg.Player)
	defer audioMgr.Shutdown()

	prefs := store.LoadPreferences(ctx, st, store.Preferences{
		Language: model.Language(appCfg.Player.DefaultLanguage),
		Volume:   appCfg.Player.Volume,
	})
	audioMgr.SetVolume(prefs.Volume)

	lang := prefs.Language
	if opts.Language != "" {
		if lang, err = model.ParseLanguage(opts.Language); err != nil {
			return err
		}
	}

	ctrl := player.New(player.Options{
		Slug:            firstNonEmpty(opts.Slug, appCfg.TTS.Slug, doc.Slug),
		Candidates:      candidates,
		Speed:           appCfg.TTS.Speed,
		ModelLabel:      appCfg.TTS.ModelLabel,
		DefaultLanguage: lang,
		ChunkSize:       appCfg.Stream.ChunkSize,
		MaxPending:      appCfg.Stream.MaxPendingChunks,
		StallTimeout:    appCfg.Stream.StallTimeout.Std(),
	}, player.Deps{
		Article:  doc,
		Caller:   caller,
		Platform: audio.Platform{},
		Handles:  registry,
		Surface:  audioMgr,
		Metrics:  m,
	})
	defer ctrl.Close()

	// Startup Probes
	checks := probe.NewRunner(appCfg.Request.Timeout.Std(), m)
	results := checks.Run(ctx, []probe.Probe{
		probe.ConfigCheck(appCfg),
		probe.StoreCheck(st),
		probe.EndpointCheck(reqClient, candidates, origin),
	})
	if err := probe.Verdict(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	if !opts.Serve {
		return playOnce(ctx, ctrl, audioMgr, lang, opts.Refresh)
	}

	if appCfg.Player.Prefetch {
		if err := ctrl.Prefetch(lang); err != nil {
			slog.Warn("Prefetch failed to start", "lang", lang, "error", err)
		}
	}
	return runServer(ctx, appCfg, ctrl, audioMgr, registry, tr, st, m, checks)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// newCaller wires every endpoint attempt into metrics and the history table.
func newCaller(ctx context.Context, client *request.Client, origin string, m *metrics.Metrics, st store.HistoryStore) *synth.Caller {
	caller := synth.NewCaller(client, origin)
	caller.OnAttempt(func(a synth.Attempt) {
		m.EndpointAttempt(a.Endpoint, a.Err == nil)

		rec := store.Attempt{
			Endpoint: a.Endpoint,
			Language: a.Language.String(),
			Slug:     a.Slug,
			Status:   a.Status,
			Chars:    a.Chars,
			Duration: a.Duration,
		}
		if a.Err != nil {
			rec.Error = a.Err.Error()
		}
		// Recorded even when the attempt's own context was cancelled.
		if err := st.RecordAttempt(context.WithoutCancel(ctx), rec); err != nil {
			slog.Warn("Failed to record synthesis attempt", "error", err)
		}
	})
	return caller
}

// playOnce narrates lang and returns when playback ends or ctx is cancelled.
func playOnce(ctx context.Context, ctrl *player.Controller, audioMgr *audio.Manager, lang model.Language, refresh bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan struct{})
	var once sync.Once
	audioMgr.SetOnComplete(func(string) { once.Do(func() { close(finished) }) })

	start := ctrl.Play
	if refresh {
		start = func(context.Context, model.Language) error { return ctrl.Refresh(lang) }
	}
	if err := start(ctx, lang); err != nil {
		return err
	}

	status, err := ctrl.Wait(ctx)
	if err != nil {
		return nil
	}
	switch status.State {
	case player.Error:
		return errors.New(status.Error)
	case player.Ready:
	default:
		slog.Info("Nothing to play", "state", status.State)
		return nil
	}

	if c := status.Caption(); c != "" {
		fmt.Println(c)
	}
	if !audioMgr.IsBusy() {
		if err := audioMgr.Play(ctx); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
	}

	select {
	case <-finished:
		slog.Info("Playback finished", "lang", lang)
	case <-ctx.Done():
		slog.Info("Playback interrupted")
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, ctrl *player.Controller, audioMgr *audio.Manager, registry *media.Registry, tr *tracker.Tracker, st store.Store, m *metrics.Metrics, checks *probe.Runner) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewHealthHandler(checks),
		api.NewPlayerHandler(ctrl, st),
		api.NewAudioHandler(audioMgr, st),
		api.NewStatsHandler(tr, registry, ctrl.Cache()),
		api.NewHistoryHandler(st),
		m.Handler(),
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
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

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
