package twitter

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the Twitter REST API root
	BaseURL = "https://api.twitter.com"

	// RetweetersEndpoint lists the ids of accounts that retweeted a status
	RetweetersEndpoint = "/1.1/statuses/retweeters/ids.json"

	// UserShowEndpoint returns a single user object
	UserShowEndpoint = "/1.1/users/show.json"

	// MaxRetweeters is the largest page the retweeters endpoint returns.
	// Later pages are never requested.
	MaxRetweeters = 100
)

// retweetersURL constructs the URL for one page of retweeter ids
func retweetersURL(base, statusID string, count int) string {
	params := url.Values{}
	params.Set("id", statusID)
	params.Set("count", strconv.Itoa(count))
	params.Set("stringify_ids", "true")

	return fmt.Sprintf("%s%s?%s", base, RetweetersEndpoint, params.Encode())
}

// userShowURL constructs the URL for a user lookup by numeric id
func userShowURL(base, userID string) string {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("include_entities", "false")

	return fmt.Sprintf("%s%s?%s", base, UserShowEndpoint, params.Encode())
}
