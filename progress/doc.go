// Package progress keeps aggregated simulation counters: how many processes
// sit in each state and how often the scheduler ticked, preempted, completed
// or killed. The tracker is updated from transition listeners and the
// scheduling loop and can be observed through an OnChange callback.
package progress
