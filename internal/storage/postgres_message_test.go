package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
)

func TestFindMessageRowsByPhones(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "phone", "content", "flow", "read", "message_timestamp", "company_id", "created_at", "updated_at"}).
		AddRow(1, "5511988887777@s.whatsapp.net", "Oi, tudo bem?", "IN", false, now.Unix(), testTenantID, now, now).
		AddRow(2, "5511988887777@s.whatsapp.net", "Tudo sim!", "OUT", false, now.Unix()-10, testTenantID, now, now)

	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE phone IN .+ AND company_id = .+ ORDER BY message_timestamp DESC`).
		WithArgs("5511988887777@s.whatsapp.net", testTenantID).
		WillReturnRows(rows)

	// Bare digits in, standardized form on the wire.
	result, err := repo.FindMessageRowsByPhones(testContext(), []string{"5511988887777"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "Oi, tudo bem?", result[0].Content)
	assert.True(t, result[0].IsUnread())
	assert.False(t, result[1].IsUnread(), "outgoing rows never count as unread")
}

func TestFindMessageRowsByPhonesEmptyInput(t *testing.T) {
	gormDB, _, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	result, err := repo.FindMessageRowsByPhones(testContext(), nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestFindMessageRowsByPhonesRequiresTenant(t *testing.T) {
	gormDB, _, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	_, err := repo.FindMessageRowsByPhones(context.Background(), []string{"5511988887777"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestMarkConversationRead(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectExec(`UPDATE "messages" SET .+ WHERE phone = .+ AND company_id = .+ AND flow = .+ AND read = false`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.MarkConversationRead(testContext(), "5511988887777")
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
}

func TestSaveMessageRowRejectsForeignTenant(t *testing.T) {
	gormDB, _, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	row := model.MessageRow{Phone: "5511988887777", Flow: model.MessageFlowIncoming, CompanyID: "someone-else"}
	err := repo.SaveMessageRow(testContext(), row)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestBulkUpsertMessageRowsSkipsForeignTenantRows(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "messages" .+ ON CONFLICT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	rows := []model.MessageRow{
		{MessageID: "wamid-1", Phone: "5511988887777", Content: "ok", Flow: model.MessageFlowIncoming},
		{MessageID: "wamid-2", Phone: "5511977776666", Content: "skip", Flow: model.MessageFlowIncoming, CompanyID: "someone-else"},
	}
	err := repo.BulkUpsertMessageRows(testContext(), rows)
	require.NoError(t, err)
}
