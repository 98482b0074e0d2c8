package storage

import (
	"context"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
)

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

func (a *MessageRepoAdapter) Save(ctx context.Context, row model.MessageRow) error {
	return a.postgres.SaveMessageRow(ctx, row)
}

func (a *MessageRepoAdapter) BulkUpsert(ctx context.Context, rows []model.MessageRow) error {
	return a.postgres.BulkUpsertMessageRows(ctx, rows)
}

func (a *MessageRepoAdapter) FindByPhones(ctx context.Context, phones []string) ([]model.MessageRow, error) {
	return a.postgres.FindMessageRowsByPhones(ctx, phones)
}

func (a *MessageRepoAdapter) MarkConversationRead(ctx context.Context, phone string) (int64, error) {
	return a.postgres.MarkConversationRead(ctx, phone)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

func (a *LeadRepoAdapter) Save(ctx context.Context, lead model.Lead) error {
	return a.postgres.SaveLead(ctx, lead)
}

func (a *LeadRepoAdapter) BulkUpsert(ctx context.Context, leads []model.Lead) error {
	return a.postgres.BulkUpsertLeads(ctx, leads)
}

func (a *LeadRepoAdapter) FindAll(ctx context.Context) ([]model.Lead, error) {
	return a.postgres.FindAllLeads(ctx)
}

func (a *LeadRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.Lead, error) {
	return a.postgres.FindLeadByPhone(ctx, phone)
}

func (a *LeadRepoAdapter) FindLeadByName(ctx context.Context, name string) (*model.Lead, error) {
	return a.postgres.FindLeadByName(ctx, name)
}

func (a *LeadRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ LeadRepo = (*LeadRepoAdapter)(nil)
