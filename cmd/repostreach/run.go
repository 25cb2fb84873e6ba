package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"repostreach/pkg/auth"
	"repostreach/pkg/checkpoint"
	"repostreach/pkg/config"
	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/models"
	"repostreach/pkg/pipeline"
	"repostreach/pkg/storage"
	"repostreach/pkg/ui"
)

var (
	// Run command flags
	backend           string
	accountName       string
	idColumn          string
	outputPath        string
	workDir           string
	cooldown          time.Duration
	checkpointEvery   int
	checkpointBackend string
	metricsAddr       string
	resumeRun         bool
	forceRestart      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <input.csv>",
	Short: "Collect reposters, count their followers and compute exposure",
	Long: `Run the full job over an input table.

Every post id in the id column is looked up in order. For each post up to
100 reposters are recorded, then every distinct reposter's follower count is
fetched once, and finally each post's exposure is written as the sum of its
reposters' follower counts.

A failed request waits out the cooldown (15 minutes by default) and is
retried once. A second failure puts the post or account on a miss list and
the job moves on. Progress is checkpointed every 100 items; interrupt with
Ctrl+C at any time and continue later with --resume.`,
	Example: `  # Start a new run
  repostreach run tweets.csv --output reach.csv

  # Continue after an interruption
  repostreach run tweets.csv --resume

  # Discard saved progress and start over
  repostreach run tweets.csv --force-restart

  # Bluesky posts given as at:// URIs, with a shorter cooldown
  repostreach run posts.csv --backend bluesky --id-column uri --cooldown 5m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReach,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show saved progress and miss lists",
	Long:  `Show how far an interrupted run got and which posts and accounts were missed.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)

	runCmd.Flags().StringVarP(&backend, "backend", "b", "", "social backend: twitter or bluesky")
	runCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	runCmd.Flags().StringVar(&idColumn, "id-column", "", "input column holding post ids (default post_id)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "result file (default reach.csv)")
	runCmd.Flags().DurationVar(&cooldown, "cooldown", 0, "wait before retrying a failed request (default 15m)")
	runCmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "items between checkpoints (default 100)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().BoolVar(&resumeRun, "resume", false, "resume from the last checkpoint")
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard saved progress and start over")

	// Shared so status finds the checkpoints of a run
	for _, cmd := range []*cobra.Command{runCmd, statusCmd} {
		cmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "directory for results and checkpoints")
		cmd.Flags().StringVar(&checkpointBackend, "checkpoint-backend", "", "checkpoint store: file or sqlite")
	}
}

// runFlags collects the run flags the user set
func runFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := globalFlags(cmd)
	if len(args) == 1 {
		flags["input"] = args[0]
	}
	set := func(name string, v interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = v
		}
	}
	set("backend", backend)
	set("account", accountName)
	set("id-column", idColumn)
	set("output", outputPath)
	set("work-dir", workDir)
	set("cooldown", cooldown)
	set("checkpoint-every", checkpointEvery)
	set("checkpoint-backend", checkpointBackend)
	set("metrics-addr", metricsAddr)
	return flags
}

func loadConfig(cmd *cobra.Command, args []string) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile, runFlags(cmd, args))
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetLogger(), nil
}

func runReach(cmd *cobra.Command, args []string) error {
	if resumeRun && forceRestart {
		return errors.New("--resume and --force-restart cannot be combined")
	}

	cfg, log, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.Input.Path == "" {
		return errors.New("no input file given: pass it as an argument or set input.path")
	}
	log.WithField("version", version).Info("repostreach starting")

	postIDs, err := storage.ReadPostIDs(cfg.Input.Path, cfg.Input.IDColumn)
	if err != nil {
		return err
	}
	ui.PrintInfo("Input", fmt.Sprintf("%s (%d posts)", cfg.Input.Path, len(postIDs)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log = log.WithField("run_id", runID)

	store, err := openStore(ctx, cfg, runID, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if pipeline.HasCheckpoint(ctx, store) && !resumeRun {
		if !forceRestart {
			ui.PrintWarning("Saved progress found in " + cfg.CheckpointDir())
			fmt.Println("  Continue it with --resume, or discard it with --force-restart.")
			return errors.New("refusing to overwrite saved progress")
		}
		log.Warn("Discarding saved progress")
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := resolveCredentials(cfg, manager, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, reg, log); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	client, err := buildClient(ctx, cfg, m, log)
	if err != nil {
		return err
	}

	results, err := storage.NewManager(resultPath(cfg))
	if err != nil {
		return err
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Client:          client,
		Store:           store,
		Results:         results,
		Cooldown:        cfg.Pipeline.Cooldown,
		Attempts:        cfg.Pipeline.RetryAttempts,
		CheckpointEvery: cfg.Pipeline.CheckpointEvery,
		RunID:           runID,
		Logger:          log,
		Metrics:         m,
		Notify:          notifyFunc(cfg.Notifications, ui.NewNotifier(cfg.Notifications.Enabled)),
	})
	if err != nil {
		return err
	}

	ui.PrintHighlight("[COLLECTING]")
	report, err := runner.Run(ctx, postIDs, resumeRun)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			ui.PrintWarning("Interrupted. Progress saved; continue with --resume")
			return err
		}
		log.WithError(err).Error("Run failed")
		return err
	}

	ui.PrintSummary(report, results.Path())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg, "status", log)
	if err != nil {
		return err
	}
	defer store.Close()

	var collect pipeline.CollectState
	found, err := store.Load(ctx, checkpoint.CollectorProgress, &collect)
	if err != nil {
		return err
	}
	if !found {
		ui.PrintInfo("Collect", "no saved progress")
	} else {
		ui.PrintInfo("Collect", fmt.Sprintf("%d of %d posts visited, %d recorded, done=%t",
			collect.Next, collect.Input.Rows, len(collect.Table), collect.Done))
	}

	var count pipeline.CountState
	if found, err := store.Load(ctx, checkpoint.FollowerProgress, &count); err != nil {
		return err
	} else if found {
		ui.PrintInfo("Count", fmt.Sprintf("%d accounts counted, done=%t", len(count.Followers), count.Done))
	} else {
		ui.PrintInfo("Count", "no saved progress")
	}

	for _, name := range []string{checkpoint.PostMisses, checkpoint.AccountMisses} {
		var misses models.MissList
		if _, err := store.Load(ctx, name, &misses); err != nil {
			return err
		}
		ui.PrintInfo(name, fmt.Sprintf("%d %v", len(misses), misses))
	}
	return nil
}
