// Package pipeline runs the two-phase reach computation.
//
// The collect phase walks the post list and records up to the platform cap
// of reposters for each post. The count phase looks up the follower count
// of every distinct reposter exactly once. Aggregation then sums the known
// follower counts of each post's reposters into its exposure.
//
// Both phases follow the same failure policy: a failed fetch waits out the
// cooldown and is retried once. A second failure lands the item on the
// phase's miss list and the phase moves on. Progress is handed to a
// checkpoint callback on a fixed cadence so an interrupted run can resume
// where it stopped.
package pipeline
