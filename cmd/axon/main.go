// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial

// Axon is a human-gated Reddit engagement agent. Every subcommand works
// against the same config file and database: `run` discovers candidates
// and queues drafts, `server` hosts the approval surface, `publish`
// posts approved drafts and `check-engagement` measures how published
// replies fared.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/element-hq/axon/callbackapi"
	"github.com/element-hq/axon/callbackapi/routing"
	"github.com/element-hq/axon/engagement"
	"github.com/element-hq/axon/generator"
	"github.com/element-hq/axon/internal"
	"github.com/element-hq/axon/internal/caching"
	"github.com/element-hq/axon/internal/sqlutil"
	"github.com/element-hq/axon/notify"
	"github.com/element-hq/axon/pipeline"
	"github.com/element-hq/axon/publish"
	"github.com/element-hq/axon/reddit"
	"github.com/element-hq/axon/scoring"
	"github.com/element-hq/axon/setup/config"
	"github.com/element-hq/axon/setup/process"
	"github.com/element-hq/axon/storage"
)

// autoPublishInterval is how often the server sweeps for approved
// drafts that were not auto-published at decision time, e.g. because
// the daily cap was hit or the process restarted.
const autoPublishInterval = 15 * time.Minute

func main() {
	internal.SetupStdLogging()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "run":
		os.Exit(cmdRun(args))
	case "publish":
		os.Exit(cmdPublish(args))
	case "check-engagement":
		os.Exit(cmdCheckEngagement(args))
	case "server":
		os.Exit(cmdServer(args))
	case "health":
		os.Exit(cmdHealth(args))
	case "version":
		fmt.Println(internal.VersionString())
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  run               discover candidates and queue drafts for approval
  server            serve the approval callback API
  publish           post approved drafts to Reddit
  check-engagement  measure engagement of published replies
  health            report database reachability and recent errors
  version           print the version and exit

Every command accepts -config <path> (default "axon.yaml").
`, os.Args[0])
}

// env is everything a subcommand needs, wired once from the config.
type env struct {
	cfg      *config.Axon
	db       storage.Database
	caches   *caching.Caches
	client   *reddit.Client
	notifier notify.Notifier

	tracingCloser io.Closer
}

func setupEnv(processCtx *process.ProcessContext, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	internal.SetupHookLogging(cfg.Logging)

	if cfg.Global.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging")
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Global.Sentry.DSN,
			Environment:      cfg.Global.Sentry.Environment,
			Release:          "axon@" + internal.VersionString(),
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("failed to start Sentry: %w", err)
		}
	}

	closer, err := cfg.SetupTracing()
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	cm := sqlutil.NewConnectionManager(processCtx, cfg.Global.DatabaseOptions)
	db, err := storage.NewDatabase(cm, &cfg.Global.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	caches := caching.NewRistrettoCache(
		cfg.Global.Cache.EstimatedMaxSize,
		cfg.Global.Cache.MaxAge,
		cfg.Global.Cache.EnablePrometheus,
	)
	notifier, err := notify.NewNotifier(&cfg.Notifier)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:           cfg,
		db:            db,
		caches:        caches,
		client:        reddit.NewClient(&cfg.Reddit, caches),
		notifier:      notifier,
		tracingCloser: closer,
	}, nil
}

func (e *env) close() {
	if e.tracingCloser != nil {
		e.tracingCloser.Close() // nolint: errcheck
	}
	sentry.Flush(2 * time.Second)
}

// newPipeline builds the full discovery pipeline on top of the env.
func (e *env) newPipeline() (*pipeline.Pipeline, error) {
	gen, err := generator.NewGenerator(&e.cfg.Generator)
	if err != nil {
		return nil, err
	}
	rules := reddit.NewRuleEngine(e.client, e.caches, e.cfg.Reddit.RulesCacheTTL)
	tracker := scoring.NewTracker(&e.cfg.Scoring.Learning, e.db)
	scorer := scoring.NewScorer(&e.cfg.Scoring, e.client, tracker)
	return pipeline.New(e.cfg, e.db, e.client, rules, scorer, gen, e.notifier), nil
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "axon.yaml", "path to the config file")
	dryRun := fs.Bool("dry-run", false, "fetch and select but queue nothing")
	fs.Parse(args) // nolint: errcheck

	e, err := setupEnv(nil, *configPath)
	if err != nil {
		logrus.WithError(err).Error("Setup failed")
		return 1
	}
	defer e.close()

	p, err := e.newPipeline()
	if err != nil {
		logrus.WithError(err).Error("Failed to build pipeline")
		return 1
	}
	p.DryRun = *dryRun
	e.client.DryRun = *dryRun

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := p.Run(ctx)
	if err != nil {
		logrus.WithError(err).Error("Run aborted")
		return 1
	}
	logrus.WithFields(logrus.Fields{
		"run_id":     report.RunID,
		"dispatched": report.Dispatched,
		"errors":     report.ErrorCount(),
		"duration":   report.Duration.Round(time.Second),
	}).Info("Run complete")
	if report.ErrorCount() > 0 {
		return 1
	}
	return 0
}

func cmdPublish(args []string) int {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	configPath := fs.String("config", "axon.yaml", "path to the config file")
	limit := fs.Int("limit", 10, "maximum drafts to publish in this batch")
	dryRun := fs.Bool("dry-run", false, "log what would be posted without posting")
	fs.Parse(args) // nolint: errcheck

	e, err := setupEnv(nil, *configPath)
	if err != nil {
		logrus.WithError(err).Error("Setup failed")
		return 1
	}
	defer e.close()

	pub := publish.NewPublisher(e.cfg, e.db, e.client, e.notifier)
	pub.DryRun = *dryRun
	e.client.DryRun = *dryRun

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := pub.PublishApproved(ctx, *limit)
	if err != nil {
		logrus.WithError(err).Error("Publish batch aborted")
		return 1
	}
	logrus.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"published": report.Published,
		"errors":    len(report.Errors),
	}).Info("Publish batch complete")
	if len(report.Errors) > 0 {
		return 1
	}
	return 0
}

func cmdCheckEngagement(args []string) int {
	fs := flag.NewFlagSet("check-engagement", flag.ExitOnError)
	configPath := fs.String("config", "axon.yaml", "path to the config file")
	limit := fs.Int("limit", 25, "maximum drafts to check in this sweep")
	fs.Parse(args) // nolint: errcheck

	e, err := setupEnv(nil, *configPath)
	if err != nil {
		logrus.WithError(err).Error("Setup failed")
		return 1
	}
	defer e.close()

	checker := engagement.NewChecker(&e.cfg.Scoring, e.db, e.client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := checker.CheckOnce(ctx, *limit)
	if err != nil {
		logrus.WithError(err).Error("Engagement sweep aborted")
		return 1
	}
	logrus.WithFields(logrus.Fields{
		"checked": report.Checked,
		"deleted": report.Deleted,
		"errors":  len(report.Errors),
	}).Info("Engagement sweep complete")
	if len(report.Errors) > 0 {
		return 1
	}
	return 0
}

func cmdServer(args []string) int {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "axon.yaml", "path to the config file")
	addr := fs.String("addr", "", "listen address, overriding the config")
	noAutoPublish := fs.Bool("no-auto-publish", false, "never post drafts from the server process")
	fs.Parse(args) // nolint: errcheck

	processCtx := process.NewProcessContext()
	e, err := setupEnv(processCtx, *configPath)
	if err != nil {
		logrus.WithError(err).Error("Setup failed")
		return 1
	}
	defer e.close()

	listenAddr := e.cfg.CallbackAPI.ListenAddress
	if *addr != "" {
		listenAddr = *addr
	}

	var pub *publish.Publisher
	if !*noAutoPublish {
		pub = publish.NewPublisher(e.cfg, e.db, e.client, e.notifier)
	}

	router := mux.NewRouter()
	callbackapi.AddPublicRoutes(router, e.cfg, e.db, autoPublisherOrNil(pub), e.notifier)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return processCtx.Context()
		},
	}

	ctx, stop := signal.NotifyContext(processCtx.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", listenAddr).Info("Serving callback API")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if pub != nil {
		g.Go(func() error {
			return autoPublishLoop(ctx, pub)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("Shutting down callback API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("Server stopped with error")
		return 1
	}
	logrus.Info("Server stopped")
	return 0
}

// autoPublisherOrNil avoids handing the routing layer a typed nil.
func autoPublisherOrNil(pub *publish.Publisher) routing.AutoPublisher {
	if pub == nil {
		return nil
	}
	return pub
}

// autoPublishLoop periodically drains the approved queue so drafts
// approved while the daily cap was hit, or while the process was down,
// still go out without operator action.
func autoPublishLoop(ctx context.Context, pub *publish.Publisher) error {
	ticker := time.NewTicker(autoPublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := pub.PublishApproved(ctx, 5)
			if err != nil {
				logrus.WithError(err).Error("Background publish sweep aborted")
				continue
			}
			if report.Published > 0 {
				logrus.WithField("published", report.Published).Info("Background publish sweep posted drafts")
			}
		}
	}
}

func cmdHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "axon.yaml", "path to the config file")
	fs.Parse(args) // nolint: errcheck

	e, err := setupEnv(nil, *configPath)
	if err != nil {
		logrus.WithError(err).Error("Setup failed")
		return 1
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := e.db.PendingDrafts(ctx, 50)
	if err != nil {
		logrus.WithError(err).Error("Database unreachable")
		return 1
	}
	approved, err := e.db.ApprovedDrafts(ctx, 50)
	if err != nil {
		logrus.WithError(err).Error("Database unreachable")
		return 1
	}
	fmt.Printf("axon %s\n", internal.VersionString())
	fmt.Printf("database: ok\n")
	fmt.Printf("pending drafts: %d\n", len(pending))
	fmt.Printf("approved drafts awaiting publish: %d\n", len(approved))
	return 0
}
