// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/foldatunez/internal/api/connect"
	"github.com/osa030/foldatunez/internal/app/filter"
	"github.com/osa030/foldatunez/internal/app/media"
	"github.com/osa030/foldatunez/internal/app/notification"
	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/app/session"
	"github.com/osa030/foldatunez/internal/infra/config"
	"github.com/osa030/foldatunez/internal/infra/discord"
	"github.com/osa030/foldatunez/internal/infra/logger"
	"github.com/osa030/foldatunez/internal/infra/metrics"
	"github.com/osa030/foldatunez/internal/infra/sink/speaker"
	"github.com/osa030/foldatunez/internal/infra/sink/timed"
	"github.com/osa030/foldatunez/internal/infra/sink/voice"
	"github.com/osa030/foldatunez/internal/infra/spotify"
	"github.com/osa030/foldatunez/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("foldatunez-server", "Folda Tunez music bot server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	filters, err := filter.NewChainFromConfig(cfg.EnabledFilters())
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	resolver, err := buildMedia(ctx, cfg)
	if err != nil {
		return err
	}

	// The gateway is created after the manager; sinks only ask it for voice
	// connections once commands flow.
	var gw *discord.Gateway
	channels := voice.NewChannels()
	newSink, err := sinkFactory(cfg, channels, func(guildID snowflake.ID) voice.Conn {
		return gw.VoiceConn(guildID)
	})
	if err != nil {
		return err
	}
	var voiceChannels session.VoiceChannels
	if cfg.Output.Driver == "voice" {
		voiceChannels = channels
	}

	mtr := metrics.New()
	sessionMgr, err := session.NewManager(session.Options{
		Config:   cfg,
		Resolver: resolver,
		Filters:  filters,
		Notifier: notification.NewNotifier(notification.Config{
			RatePerSec:  cfg.Notifications.RatePerSec,
			Burst:       cfg.Notifications.Burst,
			DedupWindow: cfg.Notifications.DedupWindow(),
			SendTimeout: 10 * time.Second,
		}),
		Metrics:  mtr,
		NewSink:  newSink,
		Playback: session.PlaybackConfigFrom(cfg),
		Voice:    voiceChannels,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	router := session.NewRouter(sessionMgr)

	if cfg.Discord.Enabled {
		gw, err = discord.New(discord.Config{
			Token:        cfg.Discord.Token,
			Prefix:       cfg.Discord.Prefix,
			OnDisconnect: sessionMgr.HandleDisconnect,
		}, router)
		if err != nil {
			return err
		}
		if err := gw.Open(ctx); err != nil {
			return err
		}
	} else {
		zlog.Info().Msg("Discord disabled, commands are only available through the admin API")
	}

	mux := http.NewServeMux()
	adminService := apiconnect.NewAdminService(sessionMgr, router, cfg.Admin.Name)
	adminPath, adminHandler := apiconnect.NewAdminServiceHandler(
		adminService,
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)
	mux.Handle(adminPath, adminHandler)
	mux.Handle("/metrics", mtr.Handler())

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop taking commands before tearing guilds down
	if gw != nil {
		gw.Close(shutdownCtx)
	}
	if err := sessionMgr.Close(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to close sessions: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// buildMedia creates the download client, the optional Spotify catalog and
// the backend chain on top of them.
func buildMedia(ctx context.Context, cfg *config.Config) (*media.Chain, error) {
	dl, err := ytdlp.New(ytdlp.Config{
		CacheDir:      cfg.Media.CacheDir,
		Proxy:         cfg.Media.Proxy,
		PlaylistLimit: cfg.Media.PlaylistLimit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create download client")
	}

	deps := media.Deps{Downloader: dl}
	if cfg.Spotify.Configured() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		deps.Catalog = sp
	} else {
		zlog.Info().Msg("Spotify credentials not configured, Spotify links are disabled")
	}

	chain, err := media.NewChainFromConfig(cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create media backends")
	}
	return chain, nil
}

// sinkFactory returns the per-guild output constructor for the configured driver.
func sinkFactory(cfg *config.Config, channels *voice.Channels, conns voice.ConnFactory) (session.SinkFactory, error) {
	switch cfg.Output.Driver {
	case "voice":
		enc := voice.FFmpeg{Path: cfg.Output.FFmpegPath, BitrateKbps: cfg.Output.BitrateKbps}
		return func(guildID snowflake.ID) (playback.OutputSink, error) {
			return voice.New(guildID, channels, conns, enc), nil
		}, nil
	case "speaker":
		if !speaker.Available {
			return nil, errors.Wrap(speaker.ErrUnavailable, "output driver speaker")
		}
		return func(guildID snowflake.ID) (playback.OutputSink, error) {
			s, err := speaker.New(speaker.Config{SampleRate: cfg.Output.SampleRate})
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case "timed":
		return func(guildID snowflake.ID) (playback.OutputSink, error) {
			return timed.New(cfg.Output.DefaultDuration(), timed.WithCheckFiles()), nil
		}, nil
	default:
		return nil, errors.Newf("unsupported output driver: %s", cfg.Output.Driver)
	}
}

// printFilters prints available filters.
func printFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
