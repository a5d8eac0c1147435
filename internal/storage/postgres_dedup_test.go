package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

func newMapping(id, externalUserID string, phone *string) model.DedupMapping {
	return model.DedupMapping{
		ID:             id,
		Channel:        model.ChannelTelegram,
		ExternalUserID: &externalUserID,
		Phone:          phone,
		LeadID:         "lead-" + id,
		LeadType:       model.LeadFranchiseSale,
		IntegrationID:  "int-1",
	}
}

func TestDedupRepo_FirstWriterWins(t *testing.T) {
	dedup := NewDedupRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	phone := "+79991234567"

	inserted, err := dedup.InsertIfAbsent(ctx, newMapping("a", "42", &phone))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = dedup.InsertIfAbsent(ctx, newMapping("b", "42", nil))
	require.NoError(t, err)
	assert.False(t, inserted, "same identity")

	inserted, err = dedup.InsertIfAbsent(ctx, newMapping("c", "43", &phone))
	require.NoError(t, err)
	assert.False(t, inserted, "same phone")

	found, err := dedup.FindByIdentity(ctx, model.ChannelTelegram, "42")
	require.NoError(t, err)
	assert.Equal(t, "lead-a", found.LeadID, "existing rows are never overwritten")

	found, err = dedup.FindByPhone(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, "lead-a", found.LeadID)
}

func TestDedupRepo_NullPhonesDoNotCollide(t *testing.T) {
	dedup := NewDedupRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	empty := ""

	inserted, err := dedup.InsertIfAbsent(ctx, newMapping("a", "1", nil))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = dedup.InsertIfAbsent(ctx, newMapping("b", "2", &empty))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestDedupRepo_AnonymousSendersDoNotCollide(t *testing.T) {
	dedup := NewDedupRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	anna, boris := "+79990000001", "+79990000002"

	inserted, err := dedup.InsertIfAbsent(ctx, newMapping("a", "", &anna))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = dedup.InsertIfAbsent(ctx, newMapping("b", "  ", &boris))
	require.NoError(t, err)
	assert.True(t, inserted, "a blank platform id is not a shared identity")

	_, err = dedup.FindByIdentity(ctx, model.ChannelTelegram, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	found, err := dedup.FindByPhone(ctx, boris)
	require.NoError(t, err)
	assert.Equal(t, "lead-b", found.LeadID)
	assert.Nil(t, found.ExternalUserID)
}

func TestDedupRepo_NotFound(t *testing.T) {
	dedup := NewDedupRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()

	_, err := dedup.FindByIdentity(ctx, model.ChannelVK, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = dedup.FindByPhone(ctx, "+70000000000")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = dedup.FindByPhone(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDedupRepo_ConcurrentInsertHasOneCreator(t *testing.T) {
	dedup := NewDedupRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	phone := "+79990000000"

	const workers = 16
	var (
		wg       sync.WaitGroup
		creators atomic.Int32
		failures atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inserted, err := dedup.InsertIfAbsent(ctx, newMapping(fmt.Sprintf("m-%d", i), "777", &phone))
			if err != nil {
				failures.Add(1)
				return
			}
			if inserted {
				creators.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, int32(1), creators.Load())

	repo := dedup.(*DedupRepoAdapter).postgres
	var rows int64
	require.NoError(t, repo.db.Model(&model.DedupMapping{}).Where("external_user_id = ?", "777").Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}
