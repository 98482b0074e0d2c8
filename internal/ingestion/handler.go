package ingestion

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/storage"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/validator"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// FeedHandler applies change feed events to the local message log and lead
// registry, then nudges the roster refresher so the list reloads after the
// debounce window.
type FeedHandler struct {
	messageRepo storage.MessageRepo
	leadRepo    storage.LeadRepo
	notify      func()
}

// NewFeedHandler creates a handler. notify may be nil when no refresher is
// attached (e.g. in tests).
func NewFeedHandler(messageRepo storage.MessageRepo, leadRepo storage.LeadRepo, notify func()) *FeedHandler {
	return &FeedHandler{
		messageRepo: messageRepo,
		leadRepo:    leadRepo,
		notify:      notify,
	}
}

// RegisterWith wires the handler's event types into a router.
func (h *FeedHandler) RegisterWith(r *Router) {
	r.Register(model.V1MessagesUpsert, h.HandleUpsertMessage)
	r.Register(model.V1LeadsUpsert, h.HandleUpsertLead)
}

// HandleUpsertMessage persists one message log row from the feed.
func (h *FeedHandler) HandleUpsertMessage(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var event model.UpsertMessageEvent
	if err := utils.UnmarshalJSON(rawEvent, &event); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal %s event", string(eventType))
	}
	if err := validator.Validate(&event); err != nil {
		return apperrors.NewFatal(err, "invalid %s event payload", string(eventType))
	}

	if err := h.messageRepo.BulkUpsert(ctx, []model.MessageRow{event.ToRow()}); err != nil {
		if apperrors.IsBadRequestError(err) || apperrors.IsDuplicateError(err) {
			return apperrors.NewFatal(err, "failed to upsert message row %s", event.MessageID)
		}
		return apperrors.NewRetryable(err, "failed to upsert message row %s", event.MessageID)
	}

	log.Debug("Message row upserted from feed",
		zap.String("message_id", event.MessageID),
		zap.String("phone", event.Phone))

	if h.notify != nil {
		h.notify()
	}
	return nil
}

// HandleUpsertLead persists one lead registry entry from the feed.
func (h *FeedHandler) HandleUpsertLead(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var event model.UpsertLeadEvent
	if err := utils.UnmarshalJSON(rawEvent, &event); err != nil {
		return apperrors.NewFatal(err, "failed to unmarshal %s event", string(eventType))
	}
	if err := validator.Validate(&event); err != nil {
		return apperrors.NewFatal(err, "invalid %s event payload", string(eventType))
	}

	if err := h.leadRepo.Save(ctx, event.ToLead()); err != nil {
		if apperrors.IsBadRequestError(err) || apperrors.IsDuplicateError(err) {
			return apperrors.NewFatal(err, "failed to save lead %s", event.Phone)
		}
		return apperrors.NewRetryable(err, "failed to save lead %s", event.Phone)
	}

	log.Debug("Lead upserted from feed",
		zap.String("phone", event.Phone),
		zap.String("name", event.Name))

	if h.notify != nil {
		h.notify()
	}
	return nil
}
