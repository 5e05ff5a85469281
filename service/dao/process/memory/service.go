package memory

import (
	"context"

	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
	"github.com/viant/procsim/service/dao/criteria"
	"github.com/viant/procsim/service/dao/store"
)

// Service is the live process registry. It holds the mutable processes
// themselves (not copies), keyed and listed by ascending pid.
type Service struct {
	*store.MemoryStore[int, process.Process]
}

var _ dao.Service[int, process.Process] = (*Service)(nil)

// Save registers a process.
func (s *Service) Save(ctx context.Context, p *process.Process) error {
	if p == nil {
		return dao.ErrNilEntity
	}
	if p.PID <= 0 {
		return dao.ErrInvalidID
	}
	return s.MemoryStore.Save(ctx, p)
}

// Load returns the live process or dao.ErrNotFound.
func (s *Service) Load(ctx context.Context, pid int) (*process.Process, error) {
	if pid <= 0 {
		return nil, dao.ErrInvalidID
	}
	return s.MemoryStore.Load(ctx, pid)
}

// List returns processes ordered by pid, filtered by State parameters.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*process.Process, error) {
	all, err := s.MemoryStore.List(ctx)
	if err != nil || len(parameters) == 0 {
		return all, err
	}
	out := make([]*process.Process, 0, len(all))
	for _, p := range all {
		if criteria.FilterByState(p.GetState(), parameters) {
			out = append(out, p)
		}
	}
	return out, nil
}

// New creates an empty registry.
func New() *Service {
	return &Service{MemoryStore: store.NewMemoryStore[int, process.Process](func(p *process.Process) int { return p.PID })}
}
