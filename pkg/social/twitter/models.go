package twitter

// retweetersResponse is the body of statuses/retweeters/ids with
// stringify_ids=true
type retweetersResponse struct {
	IDs               []string `json:"ids"`
	NextCursorStr     string   `json:"next_cursor_str"`
	PreviousCursorStr string   `json:"previous_cursor_str"`
}

// userResponse holds the fields of a user object the collector reads
type userResponse struct {
	IDStr          string `json:"id_str"`
	ScreenName     string `json:"screen_name"`
	FollowersCount int64  `json:"followers_count"`
}

// errorResponse is the error envelope returned with non-2xx statuses
type errorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}
