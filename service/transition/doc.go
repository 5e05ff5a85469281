// Package transition schedules one-shot delayed transitions keyed per process.
// At most one transition of a given kind may be pending for a process; pending
// transitions can be cancelled individually or all at once. Firing hands the
// transition to a Handler, which decides whether it still applies.
package transition
