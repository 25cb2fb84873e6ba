package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"repostreach/pkg/auth"
	"repostreach/pkg/checkpoint"
	"repostreach/pkg/config"
	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/pipeline"
	"repostreach/pkg/ratelimit"
	"repostreach/pkg/social"
	"repostreach/pkg/social/bluesky"
	"repostreach/pkg/social/twitter"
	"repostreach/pkg/ui"
)

// resolveCredentials fills missing tokens from the credential store. Values
// from flags, environment or config file are left alone.
func resolveCredentials(cfg *config.Config, manager *auth.Manager, log logger.Logger) error {
	backend := strings.ToLower(cfg.Social.Backend)
	if backend == auth.BackendTwitter && cfg.HasTwitterCredentials() {
		log.Info("Using credentials from configuration")
		return nil
	}
	if backend == auth.BackendBluesky && cfg.Social.BlueskyIdentifier != "" {
		log.Info("Using Bluesky login from configuration")
		return nil
	}

	var (
		account *auth.Account
		err     error
	)
	if cfg.Social.Account != "" {
		account, err = manager.Retrieve(cfg.Social.Account)
	} else {
		account, err = manager.RetrieveDefault(backend)
	}
	if err != nil {
		if backend == auth.BackendBluesky {
			// The public AppView answers without a session
			log.Info("No Bluesky login found, using the public AppView")
			return nil
		}
		return fmt.Errorf("no %s credentials found, run 'repostreach auth login': %w", backend, err)
	}
	if account.Backend != backend {
		return fmt.Errorf("account %s holds %s credentials, not %s", account.Name, account.Backend, backend)
	}

	account.ApplyTo(&cfg.Social)
	log.WithField("account", account.Name).Info("Using stored credentials")
	return nil
}

// newLimiter paces one endpoint to its configured budget
func newLimiter(l config.EndpointLimit) ratelimit.Limiter {
	if l.Requests <= 0 {
		return ratelimit.Unlimited()
	}
	return ratelimit.NewWindowLimiter(l.Requests, l.Window, l.Burst)
}

// buildClient creates the social API client for the configured backend
func buildClient(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log logger.Logger) (social.Client, error) {
	s := cfg.Social
	switch strings.ToLower(s.Backend) {
	case auth.BackendTwitter:
		creds := twitter.Credentials{
			ConsumerKey:    s.ConsumerKey,
			ConsumerSecret: s.ConsumerSecret,
			AccessToken:    s.AccessToken,
			AccessSecret:   s.AccessSecret,
		}
		if !creds.Valid() {
			return nil, fmt.Errorf("twitter backend needs consumer key, consumer secret, access token and access secret")
		}
		return twitter.NewClient(creds, twitter.Options{
			BaseURL:          s.BaseURL,
			Timeout:          s.Timeout,
			MaxReposters:     s.MaxReposters,
			RepostersLimiter: newLimiter(cfg.RateLimit.Reposters),
			FollowersLimiter: newLimiter(cfg.RateLimit.Followers),
			Metrics:          m,
			Logger:           log,
		}), nil

	case auth.BackendBluesky:
		client := bluesky.NewClient(bluesky.Options{
			Host:             s.BaseURL,
			Timeout:          s.Timeout,
			MaxReposters:     s.MaxReposters,
			RepostersLimiter: newLimiter(cfg.RateLimit.Reposters),
			FollowersLimiter: newLimiter(cfg.RateLimit.Followers),
			Metrics:          m,
			Logger:           log,
		})
		if s.BlueskyIdentifier != "" {
			if err := client.Login(ctx, s.BlueskyPDSHost, s.BlueskyIdentifier, s.BlueskyAppPassword); err != nil {
				return nil, err
			}
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown social backend %q", s.Backend)
	}
}

// openStore opens the configured checkpoint backend
func openStore(ctx context.Context, cfg *config.Config, runID string, log logger.Logger) (checkpoint.Store, error) {
	switch strings.ToLower(cfg.Checkpoint.Backend) {
	case "sqlite":
		return checkpoint.OpenSQLiteStore(ctx, cfg.SQLitePath(), runID, log)
	default:
		return checkpoint.NewFileStore(cfg.CheckpointDir(), runID, log)
	}
}

// resultPath places a relative result path inside the work directory
func resultPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Output.ResultPath) {
		return cfg.Output.ResultPath
	}
	return filepath.Join(cfg.Output.WorkDir, cfg.Output.ResultPath)
}

// notifyFunc routes runner notices to the notifier according to the
// notification preferences. It returns nil when notifications are off.
func notifyFunc(cfg config.NotificationConfig, n *ui.Notifier) func(title, message string) {
	if !cfg.Enabled || n == nil {
		return nil
	}
	return func(title, message string) {
		switch title {
		case pipeline.NoticeCooldown:
			if cfg.OnCooldown {
				n.SendNotification(title, message)
			}
		case pipeline.NoticeRunDone:
			if cfg.OnComplete {
				n.SendSuccess(title, message)
			}
		default:
			if cfg.OnComplete {
				n.SendNotification(title, message)
			}
		}
	}
}
