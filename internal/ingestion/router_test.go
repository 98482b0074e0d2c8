package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/tenant"
)

func TestRouterRoutesByBaseEventType(t *testing.T) {
	router := NewRouter()

	var gotType model.EventType
	var gotCompany string
	router.Register(model.V1MessagesUpsert, func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		gotType = eventType
		gotCompany, _ = tenant.FromContext(ctx)
		return nil
	})

	metadata := &model.MessageMetadata{
		MessageSubject: "v1.messages.upsert.tenant-a",
		CompanyID:      "tenant-a",
	}
	err := router.Route(context.Background(), metadata, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, model.V1MessagesUpsert, gotType)
	assert.Equal(t, "tenant-a", gotCompany, "tenant must ride the handler context")
}

func TestRouterUnknownTypeFallsBackToDefault(t *testing.T) {
	router := NewRouter()

	defaultCalled := false
	router.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		defaultCalled = true
		return nil
	})

	metadata := &model.MessageMetadata{MessageSubject: "v1.something.else.tenant-a"}
	err := router.Route(context.Background(), metadata, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, defaultCalled)
}

func TestRouterUnknownTypeWithoutDefaultIsDropped(t *testing.T) {
	router := NewRouter()
	metadata := &model.MessageMetadata{MessageSubject: "v1.something.else.tenant-a"}
	err := router.Route(context.Background(), metadata, []byte(`{}`))
	assert.NoError(t, err)
}

func TestRouterPropagatesHandlerError(t *testing.T) {
	router := NewRouter()
	handlerErr := errors.New("boom")
	router.Register(model.V1LeadsUpsert, func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return handlerErr
	})

	metadata := &model.MessageMetadata{MessageSubject: "v1.leads.upsert.tenant-a"}
	err := router.Route(context.Background(), metadata, []byte(`{}`))
	assert.ErrorIs(t, err, handlerErr)
}

func TestDetermineAckNakAction(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond

	tests := []struct {
		name         string
		err          error
		numDelivered uint64
		wantAction   AckNakAction
		wantDelay    time.Duration
	}{
		{name: "success acks", err: nil, numDelivered: 1, wantAction: ActionAck},
		{name: "retryable first attempt naks with base delay", err: apperrors.NewRetryable(errors.New("db down"), "upsert"), numDelivered: 1, wantAction: ActionNakDelay, wantDelay: base},
		{name: "retryable second attempt doubles delay", err: apperrors.NewRetryable(errors.New("db down"), "upsert"), numDelivered: 2, wantAction: ActionNakDelay, wantDelay: 2 * base},
		{name: "delay capped at max", err: apperrors.NewRetryable(errors.New("db down"), "upsert"), numDelivered: 4, wantAction: ActionNakDelay, wantDelay: max},
		{name: "fatal terminates immediately", err: apperrors.NewFatal(errors.New("bad payload"), "unmarshal"), numDelivered: 1, wantAction: ActionTerm},
		{name: "retryable at max deliver terminates", err: apperrors.NewRetryable(errors.New("db down"), "upsert"), numDelivered: 5, wantAction: ActionTerm},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metadata := &nats.MsgMetadata{NumDelivered: tc.numDelivered}
			action, delay := determineAckNakAction(tc.err, metadata, 5, base, max)
			assert.Equal(t, tc.wantAction, action)
			if tc.wantAction == ActionNakDelay {
				assert.Equal(t, tc.wantDelay, delay)
			}
		})
	}
}
