package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
)

// fakeIncr emulates INCR over an in-memory map.
type fakeIncr struct {
	counters map[string]int64
	err      error
	keys     []string
}

func (f *fakeIncr) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	f.keys = append(f.keys, key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counters[key]++
	cmd.SetVal(f.counters[key])
	return cmd
}

func TestRedisRotation_Cycles(t *testing.T) {
	fake := &fakeIncr{counters: map[string]int64{}}
	rotation := NewRedisRotation(fake)
	ctx := tenant.WithCompanyID(context.Background(), "acme")

	var got []int
	for i := 0; i < 7; i++ {
		idx, err := rotation.Next(ctx, "int-1", 3)
		require.NoError(t, err)
		got = append(got, idx)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)
	assert.Equal(t, "hub:rr:acme:int-1", fake.keys[0])

	idx, err := rotation.Next(ctx, "int-2", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, idx, "integrations rotate independently")
	assert.Equal(t, int64(8), rotation.GetStats().Calls)
}

func TestRedisRotation_Errors(t *testing.T) {
	fake := &fakeIncr{counters: map[string]int64{}, err: errors.New("connection refused")}
	rotation := NewRedisRotation(fake)
	ctx := tenant.WithCompanyID(context.Background(), "acme")

	_, err := rotation.Next(ctx, "int-1", 3)
	assert.Error(t, err)
	assert.Equal(t, int64(1), rotation.GetStats().Errors)

	_, err = rotation.Next(ctx, "int-1", 0)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = rotation.Next(context.Background(), "int-1", 3)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
