// Package allocator runs the scheduling loop. It is the only service allowed
// to mutate process state: every tick, delayed transition and manual override
// is applied under a single evaluation lock, so a timer firing during a tick
// observes either the state before or after that tick, never a mix.
package allocator
