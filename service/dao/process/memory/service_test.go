package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/procsim/policy"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
)

func TestService_List(t *testing.T) {
	ctx := context.Background()
	srv := New()
	for _, pid := range []int{4, 2, 1, 3} {
		assert.NoError(t, srv.Save(ctx, process.New(pid, policy.Low, 0)))
	}
	p, err := srv.Load(ctx, 2)
	assert.NoError(t, err)
	assert.True(t, p.Fire(process.TriggerAdmit))

	all, err := srv.List(ctx)
	assert.NoError(t, err)
	var pids []int
	for _, item := range all {
		pids = append(pids, item.PID)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, pids)

	ready, err := srv.List(ctx, dao.WithStates(process.StateReady)...)
	assert.NoError(t, err)
	if assert.Len(t, ready, 1) {
		assert.Equal(t, 2, ready[0].PID)
	}

	fresh, err := srv.List(ctx, dao.WithStates(process.StateNew, process.StateReady)...)
	assert.NoError(t, err)
	assert.Len(t, fresh, 4)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	srv := New()
	assert.ErrorIs(t, srv.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, srv.Save(ctx, &process.Process{}), dao.ErrInvalidID)
	_, err := srv.Load(ctx, 0)
	assert.ErrorIs(t, err, dao.ErrInvalidID)
	_, err = srv.Load(ctx, 9)
	assert.ErrorIs(t, err, dao.ErrNotFound)
	assert.ErrorIs(t, srv.Delete(ctx, 9), dao.ErrNotFound)
}
