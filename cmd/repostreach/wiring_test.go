package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostreach/pkg/auth"
	"repostreach/pkg/checkpoint"
	"repostreach/pkg/config"
	"repostreach/pkg/logger"
	"repostreach/pkg/pipeline"
	"repostreach/pkg/social/bluesky"
	"repostreach/pkg/social/twitter"
	"repostreach/pkg/ui"
)

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func twitterAccount(name string) *auth.Account {
	return &auth.Account{
		Name:           name,
		Backend:        auth.BackendTwitter,
		ConsumerKey:    "ck-" + name,
		ConsumerSecret: "cs-" + name,
		AccessToken:    "at-" + name,
		AccessSecret:   "as-" + name,
	}
}

// newTestManager returns a manager over an encrypted file in a temp dir
func newTestManager(t *testing.T) (*auth.Manager, auth.CredentialStore) {
	t.Helper()
	store, err := auth.NewEncryptedFileStore(filepath.Join(t.TempDir(), "credentials.enc"), "test-passphrase")
	require.NoError(t, err)
	return auth.NewManagerWithStores(store), store
}

func TestResolveCredentials(t *testing.T) {
	log := logger.NewNopLogger()

	t.Run("configured tokens win", func(t *testing.T) {
		manager, store := newTestManager(t)
		require.NoError(t, store.Store(twitterAccount("stored")))

		cfg := config.DefaultConfig()
		cfg.Social.ConsumerKey = "ck"
		cfg.Social.ConsumerSecret = "cs"
		cfg.Social.AccessToken = "at"
		cfg.Social.AccessSecret = "as"

		require.NoError(t, resolveCredentials(cfg, manager, log))
		assert.Equal(t, "ck", cfg.Social.ConsumerKey)
	})

	t.Run("stored account fills tokens", func(t *testing.T) {
		manager, store := newTestManager(t)
		require.NoError(t, store.Store(twitterAccount("stored")))

		cfg := config.DefaultConfig()
		require.NoError(t, resolveCredentials(cfg, manager, log))
		assert.True(t, cfg.HasTwitterCredentials())
		assert.Equal(t, "at-stored", cfg.Social.AccessToken)
	})

	t.Run("named account", func(t *testing.T) {
		manager, store := newTestManager(t)
		require.NoError(t, store.Store(twitterAccount("a")))
		require.NoError(t, store.Store(twitterAccount("b")))

		cfg := config.DefaultConfig()
		cfg.Social.Account = "b"
		require.NoError(t, resolveCredentials(cfg, manager, log))
		assert.Equal(t, "ck-b", cfg.Social.ConsumerKey)
	})

	t.Run("backend mismatch", func(t *testing.T) {
		manager, store := newTestManager(t)
		require.NoError(t, store.Store(&auth.Account{
			Name:        "sky",
			Backend:     auth.BackendBluesky,
			Identifier:  "alice.bsky.social",
			AppPassword: "pw",
		}))

		cfg := config.DefaultConfig()
		cfg.Social.Account = "sky"
		assert.Error(t, resolveCredentials(cfg, manager, log))
	})

	t.Run("twitter without credentials", func(t *testing.T) {
		manager, _ := newTestManager(t)
		err := resolveCredentials(config.DefaultConfig(), manager, log)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
	})

	t.Run("bluesky falls back to public access", func(t *testing.T) {
		manager, _ := newTestManager(t)
		cfg := config.DefaultConfig()
		cfg.Social.Backend = auth.BackendBluesky

		require.NoError(t, resolveCredentials(cfg, manager, log))
		assert.Empty(t, cfg.Social.BlueskyIdentifier)
	})
}

func TestBuildClient(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNopLogger()

	cfg := config.DefaultConfig()
	_, err := buildClient(ctx, cfg, nil, log)
	assert.Error(t, err, "twitter without tokens")

	cfg.Social.ConsumerKey = "ck"
	cfg.Social.ConsumerSecret = "cs"
	cfg.Social.AccessToken = "at"
	cfg.Social.AccessSecret = "as"
	client, err := buildClient(ctx, cfg, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &twitter.Client{}, client)

	cfg.Social.Backend = auth.BackendBluesky
	client, err = buildClient(ctx, cfg, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &bluesky.Client{}, client)

	cfg.Social.Backend = "mastodon"
	_, err = buildClient(ctx, cfg, nil, log)
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNopLogger()

	cfg := config.DefaultConfig()
	cfg.Output.WorkDir = t.TempDir()

	store, err := openStore(ctx, cfg, "run-1", log)
	require.NoError(t, err)
	assert.IsType(t, &checkpoint.FileStore{}, store)
	require.NoError(t, store.Close())

	cfg.Checkpoint.Backend = "sqlite"
	store, err = openStore(ctx, cfg, "run-1", log)
	require.NoError(t, err)
	assert.IsType(t, &checkpoint.SQLiteStore{}, store)
	require.NoError(t, store.Close())
	assert.FileExists(t, cfg.SQLitePath())
}

func TestResultPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.WorkDir = "work"
	cfg.Output.ResultPath = "reach.csv"
	assert.Equal(t, filepath.Join("work", "reach.csv"), resultPath(cfg))

	abs := filepath.Join(t.TempDir(), "out.csv")
	cfg.Output.ResultPath = abs
	assert.Equal(t, abs, resultPath(cfg))
}

func TestNewLimiter(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NotNil(t, newLimiter(cfg.RateLimit.Reposters))

	// The default follower budget serves a burst without blocking
	followers := newLimiter(cfg.RateLimit.Followers)
	assert.True(t, followers.Allow())

	limiter := newLimiter(config.EndpointLimit{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotifyFunc(t *testing.T) {
	ui.Output = &nopWriter{}

	assert.Nil(t, notifyFunc(config.NotificationConfig{Enabled: false}, ui.NewNotifier(false)))

	sender := &recordingSender{}
	notify := notifyFunc(config.NotificationConfig{
		Enabled:    true,
		OnCooldown: false,
		OnComplete: true,
	}, ui.NewNotifierWithSender(sender))
	require.NotNil(t, notify)

	notify(pipeline.NoticeCooldown, "waiting")
	notify(pipeline.NoticeCollectDone, "10 posts")
	notify(pipeline.NoticeRunDone, "done")
	assert.Equal(t, []string{pipeline.NoticeCollectDone, pipeline.NoticeRunDone}, sender.titles)

	sender.titles = nil
	notify = notifyFunc(config.NotificationConfig{
		Enabled:    true,
		OnCooldown: true,
		OnComplete: false,
	}, ui.NewNotifierWithSender(sender))
	notify(pipeline.NoticeCooldown, "waiting")
	notify(pipeline.NoticeRunDone, "done")
	assert.Equal(t, []string{pipeline.NoticeCooldown}, sender.titles)
}

func TestMaskedConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Social.ConsumerKey = "abcdefghijkl"
	cfg.Social.AccessSecret = "short"

	masked := maskedConfig(cfg)
	assert.Equal(t, "abcd...ijkl", masked.Social.ConsumerKey)
	assert.Equal(t, "***", masked.Social.AccessSecret)
	assert.Empty(t, masked.Social.BlueskyAppPassword)
	assert.Equal(t, "abcdefghijkl", cfg.Social.ConsumerKey, "original untouched")
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
