package storage

import (
	"context"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
)

// MessageRepo defines message-log storage operations
type MessageRepo interface {
	Save(ctx context.Context, row model.MessageRow) error
	BulkUpsert(ctx context.Context, rows []model.MessageRow) error
	FindByPhones(ctx context.Context, phones []string) ([]model.MessageRow, error)
	MarkConversationRead(ctx context.Context, phone string) (int64, error)
	Close(ctx context.Context) error
}

// LeadRepo defines lead-registry storage operations
type LeadRepo interface {
	Save(ctx context.Context, lead model.Lead) error
	BulkUpsert(ctx context.Context, leads []model.Lead) error
	FindAll(ctx context.Context) ([]model.Lead, error)
	FindByPhone(ctx context.Context, phone string) (*model.Lead, error)
	FindLeadByName(ctx context.Context, name string) (*model.Lead, error)
	Close(ctx context.Context) error
}
