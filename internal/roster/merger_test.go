package roster

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
)

func init() {
	// Initialize logger for tests
	logger.Log = zap.NewNop()
}

// MockLeadDirectory mocks the merge-time lead lookup fallback.
type MockLeadDirectory struct {
	mock.Mock
}

func (m *MockLeadDirectory) FindLeadByName(ctx context.Context, name string) (*model.Lead, error) {
	args := m.Called(ctx, name)
	if lead, ok := args.Get(0).(*model.Lead); ok {
		return lead, args.Error(1)
	}
	return nil, args.Error(1)
}

func textChat(id, name, text string, ts int64) model.GatewayChat {
	return model.GatewayChat{
		ID:                   id,
		DisplayName:          name,
		LastMessage:          &model.MessagePayload{Conversation: text},
		LastMessageTimestamp: ts,
	}
}

func TestMergeEmptyChatList(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{LogAvailable: true})
	assert.Empty(t, out)
}

func TestMergeFiltersChatWithoutID(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			{ID: "  "},
			textChat("5511988887777@s.whatsapp.net", "Maria", "oi", 1700000000),
		},
		LogAvailable: true,
	})
	require.Len(t, out, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", out[0].Phone)
}

func TestMergeGatewayAndLogScenario(t *testing.T) {
	// Gateway knows only an image; the log has newer real text, unread.
	m := NewMerger(nil)
	logTs := int64(1700000100)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{{
			ID:                   "5511988887777@s.whatsapp.net",
			DisplayName:          "",
			LastMessage:          &model.MessagePayload{ImageMessage: &model.MediaMessage{}},
			LastMessageTimestamp: 1700000000,
		}},
		Rows: []model.MessageRow{{
			Phone:            "5511988887777@s.whatsapp.net",
			Content:          "Oi, tudo bem?",
			Flow:             model.MessageFlowIncoming,
			Read:             false,
			MessageTimestamp: logTs,
		}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	conv := out[0]
	assert.Equal(t, "5511988887777@s.whatsapp.net", conv.Phone)
	assert.Equal(t, "Oi, tudo bem?", conv.LastMessagePreview)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, time.Unix(logTs, 0).UTC(), conv.LastMessageAt)
	// No lead and no display name: the bare digits stand in for the name.
	assert.Equal(t, "5511988887777", conv.Name)
}

func TestMergeLeadEnrichment(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{{
			ID:                   "5511988887777@s.whatsapp.net",
			LastMessage:          &model.MessagePayload{ImageMessage: &model.MediaMessage{}},
			LastMessageTimestamp: 1700000000,
		}},
		Rows: []model.MessageRow{{
			Phone:            "5511988887777@s.whatsapp.net",
			Content:          "Oi, tudo bem?",
			Flow:             model.MessageFlowIncoming,
			MessageTimestamp: 1700000100,
		}},
		Leads:        []model.Lead{{Phone: "5511988887777", Name: "Maria Silva", Stage: "interesse"}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "Maria Silva", out[0].Name)
	assert.Equal(t, "interesse", out[0].Stage)
}

func TestMergeDedupByNormalizedPhone(t *testing.T) {
	// Same number under two different suffix tags folds into one entry.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria Silva", "mensagem antiga", 1700000000),
			textChat("5511988887777@c.us", "", "mensagem nova", 1700000500),
		},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "Maria Silva", out[0].Name)
	assert.Equal(t, "mensagem nova", out[0].LastMessagePreview)
	assert.Equal(t, time.Unix(1700000500, 0).UTC(), out[0].LastMessageAt)
}

func TestMergeDedupByNameLeadConfirmedPhone(t *testing.T) {
	// Two numbers, same display name; the lead registry names one of them and
	// stays silent about the other, so they merge onto the lead's number.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria Silva", "pela linha principal", 1700000000),
			textChat("5511977776666@s.whatsapp.net", "Maria Silva", "pela linha nova", 1700000900),
		},
		Leads:        []model.Lead{{Phone: "5511988887777", Name: "Maria Silva"}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", out[0].Phone)
	assert.Equal(t, "Maria Silva", out[0].Name)
	assert.Equal(t, "pela linha nova", out[0].LastMessagePreview)
}

func TestMergeDedupByNameLeadContradiction(t *testing.T) {
	// The registry maps each phone to a different person; identical gateway
	// display names must not collapse them.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Recepção", "olá", 1700000000),
			textChat("5511977776666@s.whatsapp.net", "Recepção", "oi", 1700000100),
		},
		Leads: []model.Lead{
			{Phone: "5511988887777", Name: "Maria Silva"},
			{Phone: "5511977776666", Name: "Ana Souza"},
		},
		LogAvailable: true,
	})

	assert.Len(t, out, 2)
}

func TestMergeDirectoryFallbackResolvesPhone(t *testing.T) {
	// Neither lead table entry matches because the registry row arrived
	// between table build and merge; the directory answers instead.
	dir := new(MockLeadDirectory)
	dir.On("FindLeadByName", mock.Anything, "Maria Silva").
		Return(&model.Lead{Phone: "5511988887777", Name: "Maria Silva"}, nil)

	m := NewMerger(dir)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("11988887777@s.whatsapp.net", "Maria Silva", "sem código do país", 1700000000),
			textChat("5511999990000@s.whatsapp.net", "Maria Silva", "com código", 1700000100),
		},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", out[0].Phone)
	dir.AssertCalled(t, "FindLeadByName", mock.Anything, "Maria Silva")
}

func TestMergePhoneTieBreakCountryPrefix(t *testing.T) {
	// No lead data at all: the number carrying the domestic country code wins.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("11988887777@s.whatsapp.net", "Maria Silva", "a", 1700000000),
			textChat("5511988887777@s.whatsapp.net", "Maria Silva", "b", 1700000100),
		},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "5511988887777@s.whatsapp.net", out[0].Phone)
}

func TestMergeUnreadSourcedFromLogNotGateway(t *testing.T) {
	// Gateway claims unread; every log row is read. The log is authoritative.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{{
			ID:                   "5511988887777@s.whatsapp.net",
			UnreadCount:          3,
			LastMessage:          &model.MessagePayload{Conversation: "oi"},
			LastMessageTimestamp: 1700000000,
		}},
		Rows: []model.MessageRow{
			{Phone: "5511988887777@s.whatsapp.net", Content: "oi", Flow: model.MessageFlowIncoming, Read: true, MessageTimestamp: 1700000000},
			{Phone: "5511988887777@s.whatsapp.net", Content: "resposta", Flow: model.MessageFlowOutgoing, Read: false, MessageTimestamp: 1700000010},
		},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].UnreadCount)
}

func TestMergeGatewayUnreadFallbackWhenLogUnavailable(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{{
			ID:                   "5511988887777@s.whatsapp.net",
			UnreadCount:          2,
			LastMessage:          &model.MessagePayload{Conversation: "oi"},
			LastMessageTimestamp: 1700000000,
		}},
		LogAvailable: false,
	})

	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].UnreadCount)
}

func TestMergeTextualLogBeatsMediaPlaceholderDespiteOlderTimestamp(t *testing.T) {
	// The log row is much older than the gateway's media-only preview; real
	// text still wins.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{{
			ID:                   "5511988887777@s.whatsapp.net",
			LastMessage:          &model.MessagePayload{VideoMessage: &model.MediaMessage{}},
			LastMessageTimestamp: 1700009000,
		}},
		Rows: []model.MessageRow{{
			Phone:            "5511988887777@s.whatsapp.net",
			Content:          "vou chegar às 15h",
			Flow:             model.MessageFlowIncoming,
			Read:             true,
			MessageTimestamp: 1700000000,
		}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "vou chegar às 15h", out[0].LastMessagePreview)
	// Timestamp keeps the gateway's newer value.
	assert.Equal(t, time.Unix(1700009000, 0).UTC(), out[0].LastMessageAt)
}

func TestMergeOlderTextualLogDoesNotBeatTextualGatewayPreview(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria", "mensagem recente do gateway", 1700009000),
		},
		Rows: []model.MessageRow{{
			Phone:            "5511988887777@s.whatsapp.net",
			Content:          "mensagem antiga",
			Flow:             model.MessageFlowIncoming,
			Read:             true,
			MessageTimestamp: 1700000000,
		}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "mensagem recente do gateway", out[0].LastMessagePreview)
}

func TestMergeLogWinsInsideToleranceWindow(t *testing.T) {
	// Log row 3s older than the gateway timestamp: still inside the window.
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria", "do gateway", 1700000003),
		},
		Rows: []model.MessageRow{{
			Phone:            "5511988887777@s.whatsapp.net",
			Content:          "do log",
			Flow:             model.MessageFlowIncoming,
			Read:             true,
			MessageTimestamp: 1700000000,
		}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "do log", out[0].LastMessagePreview)
}

func TestMergeRowTimestampFallsBackToCreatedAt(t *testing.T) {
	created := time.Unix(1700000200, 0).UTC()
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria", "do gateway", 1700000000),
		},
		Rows: []model.MessageRow{{
			Phone:     "5511988887777@s.whatsapp.net",
			Content:   "sem timestamp próprio",
			Flow:      model.MessageFlowIncoming,
			CreatedAt: created,
		}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "sem timestamp próprio", out[0].LastMessagePreview)
	assert.Equal(t, created, out[0].LastMessageAt)
}

func TestMergeMillisecondGatewayTimestamp(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria", "oi", 1700000000500),
		},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.Equal(t, time.Unix(1700000000, 500_000_000).UTC(), out[0].LastMessageAt)
}

func TestMergeSortOrderDescending(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511911110000@s.whatsapp.net", "A", "a", 1700000100),
			textChat("5511922220000@s.whatsapp.net", "B", "b", 1700000300),
			textChat("5511933330000@s.whatsapp.net", "C", "c", 1700000200),
		},
		LogAvailable: true,
	})

	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].LastMessageAt.After(out[i-1].LastMessageAt),
			"roster must be sorted by recency descending")
	}
	assert.Equal(t, "B", out[0].Name)
}

func TestMergePreviewTruncation(t *testing.T) {
	long := strings.Repeat("mensagem muito longa ", 20)
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria", long, 1700000000),
		},
		Rows: []model.MessageRow{{
			Phone:            "5511988887777@s.whatsapp.net",
			Content:          long,
			Flow:             model.MessageFlowIncoming,
			MessageTimestamp: 1700000100,
		}},
		LogAvailable: true,
	})

	require.Len(t, out, 1)
	assert.LessOrEqual(t, len([]rune(out[0].LastMessagePreview)), model.PreviewMaxLen)
}

func TestMergeNoDuplicateNormalizedPhones(t *testing.T) {
	m := NewMerger(nil)
	out := m.Merge(context.Background(), Input{
		Chats: []model.GatewayChat{
			textChat("5511988887777@s.whatsapp.net", "Maria", "a", 1700000000),
			textChat("5511988887777@c.us", "Maria", "b", 1700000100),
			textChat("5511988887777", "Maria", "c", 1700000200),
			textChat("5511977776666@s.whatsapp.net", "Pedro", "d", 1700000300),
		},
		LogAvailable: true,
	})

	seen := make(map[string]bool)
	for _, conv := range out {
		norm := strings.TrimSuffix(conv.Phone, "@s.whatsapp.net")
		assert.False(t, seen[norm], "duplicate normalized phone %s", norm)
		seen[norm] = true
	}
	assert.Len(t, out, 2)
}

func TestMergePlaceholderDisplayNamesIgnored(t *testing.T) {
	m := NewMerger(nil)
	for _, placeholder := range []string{"", "you", "Self", "Você"} {
		out := m.Merge(context.Background(), Input{
			Chats: []model.GatewayChat{
				textChat("5511988887777@s.whatsapp.net", placeholder, "oi", 1700000000),
			},
			LogAvailable: true,
		})
		require.Len(t, out, 1)
		assert.Equal(t, "5511988887777", out[0].Name, "placeholder %q must be treated as absent", placeholder)
	}
}
