package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

const (
	MessageFlowIncoming = "IN"
	MessageFlowOutgoing = "OUT"
)

// MessageRow is one row of the locally persisted message log. Phone is always
// stored in standardized form; Read is only meaningful for incoming rows.
type MessageRow struct {
	ID               int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID        string         `json:"message_id" gorm:"column:message_id;uniqueIndex" validate:"required"`
	Phone            string         `json:"phone" gorm:"column:phone;index" validate:"required"`
	Content          string         `json:"content,omitempty" gorm:"column:content"`
	Flow             string         `json:"flow" gorm:"column:flow" validate:"required,oneof=IN OUT"`
	Read             bool           `json:"read" gorm:"column:read;default:false"`
	MessageTimestamp int64          `json:"message_timestamp,omitempty" gorm:"column:message_timestamp;index"`
	CompanyID        string         `json:"company_id,omitempty" gorm:"column:company_id"`
	MessageObj       datatypes.JSON `json:"message_obj,omitempty" gorm:"type:jsonb;column:message_obj"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (MessageRow) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}

// RowTime returns the ordering key for a log row: the message timestamp when
// present, else the row creation time.
func (m *MessageRow) RowTime() time.Time {
	if m.MessageTimestamp > 0 {
		return time.Unix(m.MessageTimestamp, 0).UTC()
	}
	return m.CreatedAt.UTC()
}

// IsUnread reports whether the row counts towards a conversation's unread
// total. Outgoing rows never do.
func (m *MessageRow) IsUnread() bool {
	return m.Flow == MessageFlowIncoming && !m.Read
}

// MessageRowUpdatableFields returns the column names refreshed during an
// ON CONFLICT upsert. Excludes id and created_at.
func MessageRowUpdatableFields() []string {
	return []string{
		"content", "flow", "read", "message_timestamp", "message_obj", "updated_at",
	}
}
