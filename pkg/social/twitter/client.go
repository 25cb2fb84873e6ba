package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	errs "repostreach/pkg/errors"
	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/ratelimit"
)

// Credentials are the four OAuth 1.0a tokens of an app acting as a user
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Valid reports whether every token is set
func (c Credentials) Valid() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// Options configures a Client. The two endpoints have separate budgets,
// so each gets its own limiter; nil means unpaced.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	MaxReposters     int
	RepostersLimiter ratelimit.Limiter
	FollowersLimiter ratelimit.Limiter
	Metrics          *metrics.Metrics
	Logger           logger.Logger
}

// Client talks to the Twitter v1.1 REST API with OAuth1-signed requests
type Client struct {
	httpClient       *http.Client
	baseURL          string
	maxReposters     int
	repostersLimiter ratelimit.Limiter
	followersLimiter ratelimit.Limiter
	metrics          *metrics.Metrics
	logger           logger.Logger
}

// NewClient creates a client that signs every request with creds
func NewClient(creds Credentials, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.MaxReposters <= 0 || opts.MaxReposters > MaxRetweeters {
		opts.MaxReposters = MaxRetweeters
	}
	if opts.RepostersLimiter == nil {
		opts.RepostersLimiter = ratelimit.Unlimited()
	}
	if opts.FollowersLimiter == nil {
		opts.FollowersLimiter = ratelimit.Unlimited()
	}

	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	httpClient := config.Client(oauth1.NoContext, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
	httpClient.Timeout = opts.Timeout

	return &Client{
		httpClient:       httpClient,
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		maxReposters:     opts.MaxReposters,
		repostersLimiter: opts.RepostersLimiter,
		followersLimiter: opts.FollowersLimiter,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
	}
}

// ListReposters returns the ids of up to MaxReposters accounts that
// retweeted postID
func (c *Client) ListReposters(ctx context.Context, postID string) ([]string, error) {
	var resp retweetersResponse
	if err := c.getJSON(ctx, c.repostersLimiter, "list_reposters", retweetersURL(c.baseURL, postID, c.maxReposters), &resp); err != nil {
		return nil, err
	}

	ids := resp.IDs
	if ids == nil {
		ids = []string{}
	}
	if len(ids) > c.maxReposters {
		ids = ids[:c.maxReposters]
	}
	return ids, nil
}

// FollowerCount returns the follower count of a user id
func (c *Client) FollowerCount(ctx context.Context, accountID string) (int64, error) {
	var user userResponse
	if err := c.getJSON(ctx, c.followersLimiter, "follower_count", userShowURL(c.baseURL, accountID), &user); err != nil {
		return 0, err
	}
	if user.FollowersCount < 0 {
		return 0, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("negative follower count for %s", accountID),
			Code:    http.StatusOK,
		}
	}
	return user.FollowersCount, nil
}

// doRequest waits for the endpoint's limiter and sends the request
func (c *Client) doRequest(ctx context.Context, limiter ratelimit.Limiter, call string, req *http.Request) (*http.Response, error) {
	if err := ratelimit.Acquire(ctx, limiter, c.logger, call); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	c.metrics.ObserveRequest("twitter", call, duration)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"duration": duration,
		}).Warn("HTTP request failed")
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, limiter ratelimit.Limiter, call, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doRequest(ctx, limiter, call, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := checkResponseStatus(resp.StatusCode, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"url":          url,
			"body_preview": bodyPreview,
		}).Warn("failed to parse JSON response")
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}
	return nil
}

// checkResponseStatus maps a non-2xx status to a typed error, using the
// API's own message when the body carries one
func checkResponseStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	message := http.StatusText(status)
	var apiErr errorResponse
	if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Errors) > 0 {
		parts := make([]string, 0, len(apiErr.Errors))
		for _, e := range apiErr.Errors {
			parts = append(parts, fmt.Sprintf("%s (code %d)", e.Message, e.Code))
		}
		message = strings.Join(parts, "; ")
	}

	return errs.FromStatus(status, message)
}
