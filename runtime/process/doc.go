// Package process defines the simulated process entity: identity, priority,
// timing counters, current, override and pre-suspension state, and the
// lifecycle state machine that every mutation goes through.
//
// A Process is safe for concurrent reads through Snapshot and the getters.
// Mutating methods take the process lock themselves; callers that need to
// keep several processes consistent (the allocator) serialise their own
// access on top of that.
package process
