package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EventType identifies the base subject of a change feed event, without the
// trailing tenant token.
type EventType string

const (
	V1MessagesUpsert EventType = "v1.messages.upsert"
	V1LeadsUpsert    EventType = "v1.leads.upsert"
)

// MapToBaseEventType strips the tenant token from a subject and reports
// whether the remainder is a known event type.
func MapToBaseEventType(subject string) (EventType, bool) {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return "", false
	}
	base := EventType(subject[:idx])
	switch base {
	case V1MessagesUpsert, V1LeadsUpsert:
		return base, true
	}
	return "", false
}

// MessageMetadata carries NATS delivery details alongside an event payload.
type MessageMetadata struct {
	StreamSequence   uint64    `json:"stream_sequence"`
	ConsumerSequence uint64    `json:"consumer_sequence"`
	NumDelivered     uint64    `json:"num_delivered"`
	NumPending       uint64    `json:"num_pending"`
	Timestamp        time.Time `json:"timestamp"`
	Stream           string    `json:"stream"`
	Consumer         string    `json:"consumer"`
	Domain           string    `json:"domain,omitempty"`
	MessageID        string    `json:"message_id"`
	MessageSubject   string    `json:"message_subject"`
	CompanyID        string    `json:"company_id"`
}

// UpsertMessageEvent is the change feed payload for one message log row.
type UpsertMessageEvent struct {
	MessageID        string         `json:"message_id" validate:"required"`
	Phone            string         `json:"phone" validate:"required"`
	Content          string         `json:"content,omitempty"`
	Flow             string         `json:"flow" validate:"required,oneof=IN OUT"`
	Read             bool           `json:"read"`
	MessageTimestamp int64          `json:"message_timestamp,omitempty"`
	MessageObj       datatypes.JSON `json:"message_obj,omitempty"`
	CompanyID        string         `json:"company_id,omitempty"`
}

// ToRow converts the event into a persistable log row.
func (e *UpsertMessageEvent) ToRow() MessageRow {
	return MessageRow{
		MessageID:        e.MessageID,
		Phone:            e.Phone,
		Content:          e.Content,
		Flow:             e.Flow,
		Read:             e.Read,
		MessageTimestamp: e.MessageTimestamp,
		MessageObj:       e.MessageObj,
		CompanyID:        e.CompanyID,
	}
}

// UpsertLeadEvent is the change feed payload for one lead registry entry.
type UpsertLeadEvent struct {
	Phone     string `json:"phone" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Stage     string `json:"stage,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

// ToLead converts the event into a persistable lead.
func (e *UpsertLeadEvent) ToLead() Lead {
	return Lead{
		Phone:     e.Phone,
		Name:      e.Name,
		Stage:     e.Stage,
		CompanyID: e.CompanyID,
	}
}
