// Package procsim simulates operating-system process lifecycle management.
//
// Processes move through New, Ready, Running, Blocked, Terminated and the two
// suspended states under a core-limited, priority-preemptive scheduler. An
// OS-wide kill turns every live process into a Zombie until Resume restores
// the state each one held before.
//
// The root package exposes the controller facade:
//
//	srv := procsim.New()
//	_ = srv.SetNumCores(2)
//	p, _ := srv.AddProcess(ctx, "High")
//	srv.Start(ctx)
//	defer srv.Stop()
//	srv.ChangeProcessState(ctx, p.PID, process.StateBlocked)
//	snapshots, _ := srv.Processes(ctx)
//
// The scheduling loop lives in service/allocator, delayed transitions in
// service/transition and the per-process lifecycle in runtime/process.
package procsim
