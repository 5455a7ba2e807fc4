// Command floorcastd runs the full floorcast pipeline: the upstream
// ingestion stream, the snapshot manager, the registry cache, the
// subscriber WebSocket server, and the timeline HTTP endpoint, all
// wired through one in-process event bus.
//
// Structured on cuemby-warren's cmd/warren/main.go: a cobra root
// command with persistent logging flags initialized via
// cobra.OnInitialize, and a "serve" subcommand that supervises its
// subsystems with an errgroup instead of warren's manual
// start/stop/defer chain — the idiomatic replacement for the original
// Python process's asyncio.gather(ingest_coroutine, websocket_coroutine).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/patallen/floorcast/config"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/filtering"
	"github.com/patallen/floorcast/httpapi"
	"github.com/patallen/floorcast/ingestion"
	"github.com/patallen/floorcast/internal/obslog"
	"github.com/patallen/floorcast/reconnect"
	"github.com/patallen/floorcast/reconstruct"
	"github.com/patallen/floorcast/registrycache"
	"github.com/patallen/floorcast/session"
	"github.com/patallen/floorcast/snapshotmgr"
	"github.com/patallen/floorcast/snapshotpolicy"
	"github.com/patallen/floorcast/store/sqlite"
	"github.com/patallen/floorcast/upstream"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "floorcastd",
	Short: "floorcastd ingests Home-Assistant-shaped state changes and serves them as an event-sourced log",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override FLOORCAST_LOG_LEVEL")
	rootCmd.PersistentFlags().Bool("log-console", false, "Override FLOORCAST_LOG_TO_CONSOLE")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "HTTP/WS listen address")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	console, _ := rootCmd.PersistentFlags().GetBool("log-console")

	cfgLevel := obslog.InfoLevel
	if level != "" {
		cfgLevel = obslog.Level(level)
	}
	obslog.Init(obslog.Config{Level: cfgLevel, JSONOutput: !console})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion pipeline and the HTTP/WS server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return serve(cmd.Context(), addr)
	},
}

func serve(ctx context.Context, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("floorcastd: %w", err)
	}
	level := cfg.LogLevel
	if flagLevel, _ := rootCmd.PersistentFlags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	console := cfg.LogToConsole
	if rootCmd.PersistentFlags().Changed("log-console") {
		console, _ = rootCmd.PersistentFlags().GetBool("log-console")
	}
	obslog.Init(obslog.Config{Level: obslog.Level(level), JSONOutput: !console})
	log := obslog.Logger

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := sqlite.Open(ctx, cfg.DBURI)
	if err != nil {
		return fmt.Errorf("floorcastd: opening store: %w", err)
	}
	defer db.Close()

	events := sqlite.NewEventLog(db)
	snapshots := sqlite.NewSnapshotStore(db)

	bus := eventbus.New(ctx, log)
	recon := reconstruct.New(snapshots, events, log)
	registry := registrycache.New()
	blocklist := filtering.NewBlockList(cfg.EntityBlocklist)
	policy := snapshotpolicy.NewElapsedTime(cfg.SnapshotIntervalSeconds)
	snapMgr := snapshotmgr.New(snapshots, recon, policy, log)
	ingest := ingestion.New(events, bus, blocklist, log)
	sessions := session.New(bus, registry, recon, log)

	if err := snapMgr.Initialize(ctx); err != nil {
		return fmt.Errorf("floorcastd: initializing snapshot manager: %w", err)
	}
	registrycache.Subscribe(bus, registry)
	snapshotmgr.Subscribe(bus, snapMgr)
	session.Subscribe(bus, sessions)

	backoff := reconnect.NewBackoff(time.Second, time.Minute)
	supervisor := reconnect.NewSupervisor(backoff, log.With().Str("component", "reconnect").Logger())
	upstreamCfg := upstream.Config{URL: cfg.HAWebsocketURL, AccessToken: cfg.HAWebsocketToken}
	runSession := upstream.RunSession(upstreamCfg, bus, log, ingest.Run)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := chi.NewRouter()
	mux.Mount("/", httpapi.NewRouter(recon, events, log))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		if err := sessions.Accept(r.Context(), conn); err != nil {
			log.Debug().Err(err).Msg("subscriber session ended")
		}
	})
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Run(gctx, runSession) })
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("serving HTTP/WS")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	bus.WaitAll()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
