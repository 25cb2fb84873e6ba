// Package storage reads the input post list and maintains the result CSV.
//
// Input is any CSV with a header row; ReadPostIDs extracts one column in
// file order. The result file has the columns post_id, reposter_ids (a JSON
// array), reposter_count and exposure, where exposure holds
// "not_calculated" until the aggregation phase fills it in.
//
// Whole-file writes go through a temporary file and rename so a crash never
// leaves a truncated result behind.
package storage
