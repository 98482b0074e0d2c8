package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
)

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *MessageRepoMock) Save(ctx context.Context, row model.MessageRow) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

// BulkUpsert mocks the BulkUpsert method
func (m *MessageRepoMock) BulkUpsert(ctx context.Context, rows []model.MessageRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

// FindByPhones mocks the FindByPhones method
func (m *MessageRepoMock) FindByPhones(ctx context.Context, phones []string) ([]model.MessageRow, error) {
	args := m.Called(ctx, phones)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MessageRow), args.Error(1)
}

// MarkConversationRead mocks the MarkConversationRead method
func (m *MessageRepoMock) MarkConversationRead(ctx context.Context, phone string) (int64, error) {
	args := m.Called(ctx, phone)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *LeadRepoMock) Save(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// BulkUpsert mocks the BulkUpsert method
func (m *LeadRepoMock) BulkUpsert(ctx context.Context, leads []model.Lead) error {
	args := m.Called(ctx, leads)
	return args.Error(0)
}

// FindAll mocks the FindAll method
func (m *LeadRepoMock) FindAll(ctx context.Context) ([]model.Lead, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// FindByPhone mocks the FindByPhone method
func (m *LeadRepoMock) FindByPhone(ctx context.Context, phone string) (*model.Lead, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// FindLeadByName mocks the FindLeadByName method
func (m *LeadRepoMock) FindLeadByName(ctx context.Context, name string) (*model.Lead, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// Close mocks the Close method
func (m *LeadRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
