// Package checkpoint persists the in-progress state of a collection run so
// that a restarted process can resume instead of starting over.
//
// Snapshots are stored under fixed names (CollectorProgress,
// FollowerProgress, PostMisses, AccountMisses) and wrapped in an Envelope
// carrying the run id, owning phase, format version and write time.
//
// Two backends implement Store:
//
//   - FileStore writes <dir>/<name>.json through a temp file, fsync and
//     rename, so a crash mid-write leaves the previous snapshot intact.
//   - SQLiteStore keeps one row per name in a checkpoints table and
//     replaces it with a single upsert.
//
// Load reports (false, nil) when no snapshot exists, which callers treat
// as a fresh start.
package checkpoint
