package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

func newStoredMessage(t *testing.T, repo InboundMessageRepo, integrationID, externalUserID string, receivedAt time.Time) model.InboundMessage {
	t.Helper()
	canonical := model.NewCanonicalMessage(&model.CanonicalMessage{
		ExternalUserID: externalUserID,
		ReceivedAt:     receivedAt,
		Username:       "ivan",
		Phone:          "+79991234567",
		MessageText:    "hello",
		Attachments:    []model.Attachment{{Kind: model.AttachmentImage, Location: "file-1"}},
	})
	canonical.ExternalUserID = externalUserID
	msg := model.NewInboundMessage(uuid.NewString(), testCompanyID, integrationID, *canonical)
	require.NoError(t, repo.Save(tenantContext(), *msg))
	return *msg
}

func TestInboundMessageRepo_SaveAndFind(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	receivedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	saved := newStoredMessage(t, repo, "int-1", "42", receivedAt)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, found.Status)
	assert.Equal(t, "42", found.ExternalUserID)
	assert.True(t, receivedAt.Equal(found.ReceivedAt))
	require.NotNil(t, found.Phone)
	assert.Equal(t, "+79991234567", *found.Phone)

	canonical := found.Canonical()
	require.Len(t, canonical.Attachments, 1)
	assert.Equal(t, "file-1", canonical.Attachments[0].Location)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInboundMessageRepo_HasEarlierMessage(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	newStoredMessage(t, repo, "int-1", "42", first)
	newStoredMessage(t, repo, "int-1", "42", second)

	earlier, err := repo.HasEarlierMessage(ctx, model.ChannelTelegram, "42", first)
	require.NoError(t, err)
	assert.False(t, earlier, "the first message has nothing strictly before it")

	earlier, err = repo.HasEarlierMessage(ctx, model.ChannelTelegram, "42", second)
	require.NoError(t, err)
	assert.True(t, earlier)

	earlier, err = repo.HasEarlierMessage(ctx, model.ChannelVK, "42", second)
	require.NoError(t, err)
	assert.False(t, earlier, "identity includes the channel")
}

func TestInboundMessageRepo_BlankIdentityHasNoHistory(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	anna := newStoredMessage(t, repo, "int-1", "", first)
	newStoredMessage(t, repo, "int-1", "", first.Add(time.Minute))

	earlier, err := repo.HasEarlierMessage(ctx, model.ChannelTelegram, "", first.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, earlier)

	n, err := repo.MarkProcessedByIdentity(ctx, model.ChannelTelegram, "", first, "lead-1", model.LeadBooking)
	require.NoError(t, err)
	assert.Zero(t, n)

	found, err := repo.FindByID(ctx, anna.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, found.Status)
}

func TestInboundMessageRepo_MarkProcessedByIdentity(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()
	receivedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	msg := newStoredMessage(t, repo, "int-1", "42", receivedAt)

	n, err := repo.MarkProcessedByIdentity(ctx, model.ChannelTelegram, "42", receivedAt, "lead-1", model.LeadBooking)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, found.Status)
	require.NotNil(t, found.LeadID)
	assert.Equal(t, "lead-1", *found.LeadID)
	require.NotNil(t, found.LeadType)
	assert.Equal(t, model.LeadBooking, *found.LeadType)
	assert.NotNil(t, found.ProcessedAt)

	n, err = repo.MarkProcessedByIdentity(ctx, model.ChannelTelegram, "42", receivedAt, "lead-2", model.LeadBooking)
	require.NoError(t, err)
	assert.Zero(t, n, "an already processed message is not relinked")
}

func TestInboundMessageRepo_MarkProcessedWithoutLead(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()

	msg := newStoredMessage(t, repo, "int-1", "42", utils.Now())
	require.NoError(t, repo.MarkProcessed(ctx, msg.ID, nil, nil))

	found, err := repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, found.Status)
	assert.Nil(t, found.LeadID)

	assert.ErrorIs(t, repo.MarkProcessed(ctx, "missing", nil, nil), apperrors.ErrNotFound)
}

func TestInboundMessageRepo_MarkFailed(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()

	msg := newStoredMessage(t, repo, "int-1", "42", utils.Now())
	require.NoError(t, repo.MarkFailed(ctx, msg.ID, "invalid contact"))

	found, err := repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, found.Status)
	assert.Equal(t, "invalid contact", found.FailureReason)
}

func TestInboundMessageRepo_FindPending(t *testing.T) {
	repo := NewInboundMessageRepoAdapter(newSQLiteRepo(t))
	ctx := tenantContext()

	a := newStoredMessage(t, repo, "int-1", "1", utils.Now())
	b := newStoredMessage(t, repo, "int-2", "2", utils.Now())
	done := newStoredMessage(t, repo, "int-1", "3", utils.Now())
	require.NoError(t, repo.MarkProcessed(ctx, done.ID, nil, nil))

	future := utils.Now().Add(time.Minute)

	all, err := repo.FindPending(ctx, "", future, 10)
	require.NoError(t, err)
	ids := []string{}
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	scoped, err := repo.FindPending(ctx, "int-2", future, 10)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, b.ID, scoped[0].ID)

	none, err := repo.FindPending(ctx, "", utils.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	limited, err := repo.FindPending(ctx, "", future, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInboundMessageRepo_SaveDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO "inbound_messages"`).
		WillReturnError(errors.New("insert failed"))

	canonical := model.NewCanonicalMessage()
	msg := model.NewInboundMessage("msg-1", testCompanyID, "int-1", *canonical)
	err := repo.SaveInboundMessage(tenantContext(), *msg)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}
