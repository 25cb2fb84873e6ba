package bluesky

import (
	"context"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/cockroachdb/errors"

	errs "repostreach/pkg/errors"
	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/ratelimit"
	"repostreach/pkg/retry"
)

const (
	// PublicAppView serves unauthenticated reads
	PublicAppView = "https://public.api.bsky.app"

	// DefaultPDS is used to create a session when no PDS host is configured
	DefaultPDS = "https://bsky.social"

	// MaxRepostedBy is the page limit of app.bsky.feed.getRepostedBy
	MaxRepostedBy = 100
)

// Options configures a Client. Each call has its own limiter; nil means
// unpaced.
type Options struct {
	Host             string
	Timeout          time.Duration
	MaxReposters     int
	RepostersLimiter ratelimit.Limiter
	FollowersLimiter ratelimit.Limiter
	Metrics          *metrics.Metrics
	Logger           logger.Logger
}

// Client reads reposts and profiles through the Bluesky AppView. Post ids
// are at:// URIs, account ids are DIDs.
type Client struct {
	xrpc             *xrpc.Client
	maxReposters     int64
	repostersLimiter ratelimit.Limiter
	followersLimiter ratelimit.Limiter
	metrics          *metrics.Metrics
	logger           logger.Logger
}

// NewClient returns an anonymous client
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Host == "" {
		opts.Host = PublicAppView
	}
	if opts.MaxReposters <= 0 || opts.MaxReposters > MaxRepostedBy {
		opts.MaxReposters = MaxRepostedBy
	}
	if opts.RepostersLimiter == nil {
		opts.RepostersLimiter = ratelimit.Unlimited()
	}
	if opts.FollowersLimiter == nil {
		opts.FollowersLimiter = ratelimit.Unlimited()
	}

	return &Client{
		xrpc: &xrpc.Client{
			Host:   strings.TrimRight(opts.Host, "/"),
			Client: &http.Client{Timeout: opts.Timeout},
		},
		maxReposters:     int64(opts.MaxReposters),
		repostersLimiter: opts.RepostersLimiter,
		followersLimiter: opts.FollowersLimiter,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
	}
}

// Login creates a session on pdsHost with an app password. Subsequent
// requests go to the PDS, which proxies app.bsky reads to the AppView.
func (c *Client) Login(ctx context.Context, pdsHost, identifier, appPassword string) error {
	if pdsHost == "" {
		pdsHost = DefaultPDS
	}
	pds := &xrpc.Client{Host: strings.TrimRight(pdsHost, "/"), Client: c.xrpc.Client}

	cfg := retry.DefaultConfig()
	cfg.Context = ctx
	cfg.Logger = c.logger
	cfg.RetryIf = retryableXRPC

	session, err := retry.DoWithResult(func() (*comatproto.ServerCreateSession_Output, error) {
		return comatproto.ServerCreateSession(ctx, pds, &comatproto.ServerCreateSession_Input{
			Identifier: identifier,
			Password:   appPassword,
		})
	}, cfg)
	if err != nil {
		return errors.Wrapf(err, "failed to create session with PDS %s for %s", pdsHost, identifier)
	}

	pds.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	c.xrpc = pds

	c.logger.WithFields(map[string]interface{}{
		"handle": session.Handle,
		"did":    session.Did,
		"pds":    pdsHost,
	}).Info("Bluesky session created")
	return nil
}

// ListReposters returns the DIDs of up to the configured cap of accounts
// that reposted the post at uri
func (c *Client) ListReposters(ctx context.Context, uri string) ([]string, error) {
	if !strings.HasPrefix(uri, "at://") {
		return nil, errs.New(errs.ErrorTypeParsing, "post id %q is not an at:// URI", uri)
	}
	if err := ratelimit.Acquire(ctx, c.repostersLimiter, c.logger, "list_reposters"); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := appbsky.FeedGetRepostedBy(ctx, c.xrpc, "", "", c.maxReposters, uri)
	c.metrics.ObserveRequest("bluesky", "list_reposters", time.Since(start))
	if err != nil {
		return nil, c.mapError(ctx, "getRepostedBy", uri, err)
	}

	dids := make([]string, 0, len(out.RepostedBy))
	for _, profile := range out.RepostedBy {
		if profile == nil {
			continue
		}
		dids = append(dids, profile.Did)
	}
	if int64(len(dids)) > c.maxReposters {
		dids = dids[:c.maxReposters]
	}
	return dids, nil
}

// FollowerCount returns the follower count of the account with did
func (c *Client) FollowerCount(ctx context.Context, did string) (int64, error) {
	if err := ratelimit.Acquire(ctx, c.followersLimiter, c.logger, "follower_count"); err != nil {
		return 0, err
	}

	start := time.Now()
	profile, err := appbsky.ActorGetProfile(ctx, c.xrpc, did)
	c.metrics.ObserveRequest("bluesky", "follower_count", time.Since(start))
	if err != nil {
		return 0, c.mapError(ctx, "getProfile", did, err)
	}

	if profile.FollowersCount == nil {
		return 0, nil
	}
	return *profile.FollowersCount, nil
}

// mapError converts an XRPC failure into a typed error. The cockroachdb
// wrap keeps the lexicon method and id in the message.
func (c *Client) mapError(ctx context.Context, method, id string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	typed := &errs.Error{Type: errs.ErrorTypeNetwork, Message: err.Error()}
	var xerr *xrpc.Error
	if errors.As(err, &xerr) {
		typed = errs.FromStatus(xerr.StatusCode, err.Error())
		if xerr.Ratelimit != nil {
			c.logger.WithFields(map[string]interface{}{
				"method":    method,
				"remaining": xerr.Ratelimit.Remaining,
				"reset":     xerr.Ratelimit.Reset,
			}).Warn("Bluesky rate limit reported")
		}
	}

	c.logger.WithError(err).WithFields(map[string]interface{}{
		"method": method,
		"id":     id,
		"type":   string(typed.Type),
	}).Debug("XRPC call failed")

	return errors.Wrapf(typed, "%s %s", method, id)
}

func retryableXRPC(err error) bool {
	var xerr *xrpc.Error
	if errors.As(err, &xerr) {
		return errs.IsRetryableStatusCode(xerr.StatusCode)
	}
	return retry.RetryUnlessCancelled(err)
}
