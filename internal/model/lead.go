package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Lead is one row of the CRM lead registry. When present it is the
// authoritative name, phone and funnel stage for a contact.
type Lead struct {
	ID        int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	Phone     string    `json:"phone" gorm:"column:phone;uniqueIndex" validate:"required"`
	Name      string    `json:"name,omitempty" gorm:"column:name;index"`
	Stage     string    `json:"stage,omitempty" gorm:"column:stage"`
	CompanyID string    `json:"company_id,omitempty" gorm:"column:company_id"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Lead) TableName(namer schema.Namer) string {
	return namer.TableName("leads")
}

// LeadUpdatableFields returns the column names refreshed during an
// ON CONFLICT upsert. Excludes id, phone and created_at.
func LeadUpdatableFields() []string {
	return []string{"name", "stage", "updated_at"}
}
