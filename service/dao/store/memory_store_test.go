package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/procsim/service/dao"
)

type record struct {
	ID   int
	Name string
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int, record](func(r *record) int { return r.ID })

	assert.ErrorIs(t, s.Save(ctx, nil), dao.ErrNilEntity)
	for _, id := range []int{3, 1, 2} {
		assert.NoError(t, s.Save(ctx, &record{ID: id}))
	}
	assert.Equal(t, 3, s.Len())

	list, err := s.List(ctx)
	assert.NoError(t, err)
	var ids []int
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)

	assert.NoError(t, s.Save(ctx, &record{ID: 2, Name: "updated"}))
	loaded, err := s.Load(ctx, 2)
	assert.NoError(t, err)
	assert.Equal(t, "updated", loaded.Name)

	_, err = s.Load(ctx, 7)
	assert.True(t, errors.Is(err, dao.ErrNotFound))

	assert.NoError(t, s.Delete(ctx, 2))
	assert.ErrorIs(t, s.Delete(ctx, 2), dao.ErrNotFound)
	assert.Equal(t, 2, s.Len())
}
