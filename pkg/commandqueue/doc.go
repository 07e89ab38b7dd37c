// Package commandqueue provides lane-based task execution with FIFO ordering
// per lane.
//
// The dispatcher runs every turn for a session on that session's lane with
// concurrency 1, so two turns against the same session queue behind each
// other and never interleave. Lanes for different sessions run concurrently.
//
// Invariants:
//   - Tasks in the same lane execute in FIFO order.
//   - Tasks in different lanes may execute concurrently.
//   - Queue depth and completions are observable through metrics.
package commandqueue
