package model

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// FakePhone generates a plausible domestic mobile number in bare-digit form.
func FakePhone() string {
	return fmt.Sprintf("55119%08d", gofakeit.Number(0, 99999999))
}

// NewGatewayChat creates a GatewayChat with default fake data. Pass an
// override to pin specific fields.
func NewGatewayChat(overrideDefaults ...*GatewayChat) *GatewayChat {
	base := &GatewayChat{
		ID:          FakePhone() + "@s.whatsapp.net",
		DisplayName: gofakeit.Name(),
		LastMessage: &MessagePayload{
			Conversation: gofakeit.Sentence(6),
		},
		LastMessageTimestamp: utils.Now().Add(-time.Duration(gofakeit.Number(1, 72)) * time.Hour).Unix(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		base.ID = ovr.ID
		base.DisplayName = ovr.DisplayName
		base.UnreadCount = ovr.UnreadCount
		base.LastMessage = ovr.LastMessage
		base.LastMessageTimestamp = ovr.LastMessageTimestamp
	}
	return base
}

// NewMessageRow creates a MessageRow with default fake data.
func NewMessageRow(overrideDefaults ...*MessageRow) *MessageRow {
	ts := utils.Now().Add(-time.Duration(gofakeit.Number(1, 72)) * time.Hour)
	base := &MessageRow{
		MessageID:        "wamid." + gofakeit.LetterN(22),
		Phone:            FakePhone() + "@s.whatsapp.net",
		Content:          gofakeit.Sentence(8),
		Flow:             gofakeit.RandomString([]string{MessageFlowIncoming, MessageFlowOutgoing}),
		Read:             gofakeit.Bool(),
		MessageTimestamp: ts.Unix(),
		CompanyID:        "tenant_" + gofakeit.LetterN(10),
		CreatedAt:        ts,
		UpdatedAt:        utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		base.Phone = ovr.Phone
		base.Content = ovr.Content
		base.Flow = ovr.Flow
		base.Read = ovr.Read
		base.MessageTimestamp = ovr.MessageTimestamp
		base.CompanyID = ovr.CompanyID
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
	}
	return base
}

// NewLead creates a Lead with default fake data.
func NewLead(overrideDefaults ...*Lead) *Lead {
	base := &Lead{
		Phone:     FakePhone(),
		Name:      gofakeit.Name(),
		Stage:     gofakeit.RandomString([]string{"novo", "contato", "interesse", "agendado", "concluido"}),
		CompanyID: "tenant_" + gofakeit.LetterN(10),
		CreatedAt: utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		base.Phone = ovr.Phone
		base.Name = ovr.Name
		base.Stage = ovr.Stage
		base.CompanyID = ovr.CompanyID
	}
	return base
}
