// Package twitter implements social.Client against the Twitter v1.1 REST
// API.
//
// Requests are signed with OAuth 1.0a using the four tokens an app needs to
// act as a user. Retweeters are read from statuses/retweeters/ids with the
// maximum page size of 100; further pages are never requested. Follower
// counts come from users/show.
//
// Non-2xx responses are mapped to *errors.Error values. The client never
// retries on its own; the pipeline owns the retry policy.
package twitter
