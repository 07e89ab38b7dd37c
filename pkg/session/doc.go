// Package session provides the in-memory conversation session registry.
//
// The Store is the single source of truth for "is this session valid, who
// owns it, what is its history". All state lives for the process lifetime
// only; durable persistence belongs to an external collaborator.
//
// Invariants:
//   - Exactly one State exists per live session ID.
//   - A session is only readable/mutable by its original (user, team) owner.
//   - System messages survive every trim.
//   - All mutations happen under one mutual-exclusion section; concurrent
//     turns against the same session are serialized upstream by the
//     dispatcher's command lanes, never interleaved here.
package session
