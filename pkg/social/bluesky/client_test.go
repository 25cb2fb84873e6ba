package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "repostreach/pkg/errors"
	"repostreach/pkg/logger"
)

const postURI = "at://did:plc:author/app.bsky.feed.post/3kxyz"

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		Host:    srv.URL,
		Timeout: 5 * time.Second,
		Logger:  logger.NewNopLogger(),
	}), srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListReposters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/app.bsky.feed.getRepostedBy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, postURI, r.URL.Query().Get("uri"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Empty(t, r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"uri": postURI,
			"repostedBy": []map[string]interface{}{
				{"did": "did:plc:a", "handle": "a.test"},
				{"did": "did:plc:b", "handle": "b.test"},
			},
		})
	})
	client, _ := newTestClient(t, mux)

	dids, err := client.ListReposters(context.Background(), postURI)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:a", "did:plc:b"}, dids)
}

func TestListRepostersRejectsNonURI(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	_, err := client.ListReposters(context.Background(), "12345")
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
}

func TestFollowerCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/app.bsky.actor.getProfile", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("actor") {
		case "did:plc:a":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"did": "did:plc:a", "handle": "a.test", "followersCount": 250,
			})
		case "did:plc:new":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"did": "did:plc:new", "handle": "new.test",
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "InvalidRequest", "message": "Profile not found",
			})
		}
	})
	client, _ := newTestClient(t, mux)

	n, err := client.FollowerCount(context.Background(), "did:plc:a")
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	n, err = client.FollowerCount(context.Background(), "did:plc:new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = client.FollowerCount(context.Background(), "did:plc:gone")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeUnknown, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "getProfile did:plc:gone")
}

func TestRateLimitError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/app.bsky.feed.getRepostedBy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ratelimit-limit", "3000")
		w.Header().Set("ratelimit-remaining", "0")
		w.Header().Set("ratelimit-reset", "1700000000")
		w.Header().Set("ratelimit-policy", "3000;w=300")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "RateLimitExceeded", "message": "Rate Limit Exceeded",
		})
	})
	client, _ := newTestClient(t, mux)

	_, err := client.ListReposters(context.Background(), postURI)
	require.Error(t, err)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.ErrorTypeRateLimit, apiErr.Type)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Code)
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "me.test", in["identifier"])
		assert.Equal(t, "app-pass", in["password"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accessJwt": "access", "refreshJwt": "refresh", "handle": "me.test", "did": "did:plc:me",
		})
	})
	mux.HandleFunc("/xrpc/app.bsky.actor.getProfile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"did": "did:plc:a", "handle": "a.test", "followersCount": 7,
		})
	})

	client, srv := newTestClient(t, mux)
	require.NoError(t, client.Login(context.Background(), srv.URL, "me.test", "app-pass"))

	n, err := client.FollowerCount(context.Background(), "did:plc:a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestLoginRejected(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "AuthenticationRequired", "message": "Invalid identifier or password",
		})
	})

	client, srv := newTestClient(t, mux)
	err := client.Login(context.Background(), srv.URL, "me.test", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session")
	// 401 is not retried
	assert.Equal(t, 1, calls)
}

func TestCancelledContext(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FollowerCount(ctx, "did:plc:a")
	assert.ErrorIs(t, err, context.Canceled)
}
