package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
)

func TestFindAllLeads(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "phone", "name", "stage", "company_id", "created_at", "updated_at"}).
		AddRow(1, "5511988887777@s.whatsapp.net", "Maria Silva", "interesse", testTenantID, now, now).
		AddRow(2, "5511977776666@s.whatsapp.net", "João Souza", "novo", testTenantID, now, now)

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE company_id = .+`).
		WithArgs(testTenantID).
		WillReturnRows(rows)

	leads, err := repo.FindAllLeads(testContext())
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Maria Silva", leads[0].Name)
	assert.Equal(t, "interesse", leads[0].Stage)
}

func TestFindLeadByPhoneStandardizesInput(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "phone", "name", "stage", "company_id", "created_at", "updated_at"}).
		AddRow(1, "5511988887777@s.whatsapp.net", "Maria Silva", "interesse", testTenantID, now, now)

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE phone = .+ AND company_id = .+`).
		WithArgs("5511988887777@s.whatsapp.net", testTenantID, 1).
		WillReturnRows(rows)

	// Legacy device suffix in, standard suffix on the wire.
	lead, err := repo.FindLeadByPhone(testContext(), "5511988887777@c.us")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "Maria Silva", lead.Name)
}

func TestFindLeadByPhoneNotFound(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE phone = .+`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	lead, err := repo.FindLeadByPhone(testContext(), "5511900000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, lead)
}

func TestFindLeadByNameCaseInsensitive(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "phone", "name", "stage", "company_id", "created_at", "updated_at"}).
		AddRow(1, "5511988887777@s.whatsapp.net", "Maria Silva", "interesse", testTenantID, now, now)

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE LOWER\(name\) = LOWER\(.+\) AND company_id = .+ ORDER BY updated_at DESC`).
		WithArgs("maria silva", testTenantID, 1).
		WillReturnRows(rows)

	lead, err := repo.FindLeadByName(testContext(), "maria silva")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "5511988887777@s.whatsapp.net", lead.Phone)
}

func TestFindLeadByNameNotFound(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE LOWER\(name\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	lead, err := repo.FindLeadByName(testContext(), "ninguém")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, lead)
}

func TestSaveLeadUpsert(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectQuery(`INSERT INTO "leads" .+ ON CONFLICT \("phone"\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := repo.SaveLead(testContext(), model.Lead{
		Phone: "5511988887777",
		Name:  "Maria Silva",
		Stage: "interesse",
	})
	require.NoError(t, err)
}

func TestSaveLeadRejectsForeignTenant(t *testing.T) {
	gormDB, _, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	err := repo.SaveLead(testContext(), model.Lead{
		Phone:     "5511988887777",
		Name:      "Maria Silva",
		CompanyID: "someone-else",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestBulkUpsertLeads(t *testing.T) {
	gormDB, mock, teardown := newMockDB(t)
	defer teardown()
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "leads" .+ ON CONFLICT \("phone"\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	err := repo.BulkUpsertLeads(testContext(), []model.Lead{
		{Phone: "5511988887777", Name: "Maria Silva", Stage: "interesse"},
		{Phone: "5511977776666", Name: "João Souza", Stage: "novo"},
	})
	require.NoError(t, err)
}
