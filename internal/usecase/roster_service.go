package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/normalize"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/roster"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/storage"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/tenant"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// ChatSource lists the chats known to the messaging gateway.
type ChatSource interface {
	ListChats(ctx context.Context) ([]model.GatewayChat, error)
}

// Enricher fills avatar URLs into a freshly merged roster.
type Enricher interface {
	Enrich(ctx context.Context, convs []model.Conversation)
}

// RosterService builds and serves the merged conversation roster. Every load
// rebuilds the snapshot from scratch; readers always see either the previous
// complete snapshot or the new one, never a partial state.
type RosterService struct {
	chats       ChatSource
	messageRepo storage.MessageRepo
	leadRepo    storage.LeadRepo
	merger      *roster.Merger
	enricher    Enricher // may be nil
	companyID   string

	mu       sync.RWMutex
	snapshot []model.Conversation
	loadedAt time.Time
}

// NewRosterService creates the service. enricher may be nil to disable avatar
// enrichment.
func NewRosterService(chats ChatSource, messageRepo storage.MessageRepo, leadRepo storage.LeadRepo, merger *roster.Merger, enricher Enricher, companyID string) *RosterService {
	return &RosterService{
		chats:       chats,
		messageRepo: messageRepo,
		leadRepo:    leadRepo,
		merger:      merger,
		enricher:    enricher,
		companyID:   companyID,
	}
}

// Load fetches gateway chats, the persisted log and the lead registry, merges
// them and swaps the snapshot. A gateway failure (after its own retries)
// yields an empty roster; log or lead failures degrade gracefully and keep
// whatever the gateway returned.
func (s *RosterService) Load(ctx context.Context) error {
	requestID := uuid.NewString()
	ctx = tenant.WithCompanyID(ctx, s.companyID)
	ctx = tenant.WithRequestID(ctx, requestID)
	log := logger.FromContext(ctx).With(
		zap.String("request_id", requestID),
		zap.String("company_id", s.companyID),
	)
	ctx = logger.WithLogger(ctx, log)

	startTime := utils.Now()

	chats, err := s.chats.ListChats(ctx)
	if err != nil {
		// A superseded load surfaces as a cancellation here; the previous
		// snapshot stays intact until the replacing load finishes.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			log.Info("Chat list fetch cancelled, keeping current snapshot", zap.Error(err))
			observer.IncRosterLoad(s.companyID, "cancelled")
			return err
		}
		log.Error("Chat list fetch failed, presenting empty state", zap.Error(err))
		s.swap(nil)
		observer.IncRosterLoad(s.companyID, "empty_state")
		observer.ObserveRosterLoadDuration(s.companyID, time.Since(startTime))
		return err
	}

	phones := make([]string, 0, len(chats))
	for i := range chats {
		if strings.TrimSpace(chats[i].ID) != "" {
			phones = append(phones, chats[i].ID)
		}
	}

	// Log and lead queries run concurrently; either may fail without sinking
	// the load.
	var (
		wg           sync.WaitGroup
		rows         []model.MessageRow
		rowsErr      error
		leads        []model.Lead
		leadsErr     error
		logAvailable = true
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer utils.RecoverWithLog(ctx, "message log query")
		rows, rowsErr = s.messageRepo.FindByPhones(ctx, phones)
	}()
	go func() {
		defer wg.Done()
		defer utils.RecoverWithLog(ctx, "lead registry query")
		leads, leadsErr = s.leadRepo.FindAll(ctx)
	}()
	wg.Wait()

	degraded := false
	if rowsErr != nil {
		log.Warn("Message log unavailable, falling back to gateway unread counts", zap.Error(rowsErr))
		rows = nil
		logAvailable = false
		degraded = true
	}
	if leadsErr != nil {
		log.Warn("Lead registry unavailable, merging without leads", zap.Error(leadsErr))
		leads = nil
		degraded = true
	}

	mergeStart := utils.Now()
	conversations := s.merger.Merge(ctx, roster.Input{
		Chats:        chats,
		Rows:         rows,
		Leads:        leads,
		LogAvailable: logAvailable,
	})
	observer.ObserveMergeDuration(s.companyID, time.Since(mergeStart))

	if s.enricher != nil {
		s.enricher.Enrich(ctx, conversations)
	}

	if err := ctx.Err(); err != nil {
		// A newer load superseded this one; keep the current snapshot.
		log.Debug("Load cancelled before snapshot swap", zap.Error(err))
		return err
	}
	s.swap(conversations)

	result := "success"
	if degraded {
		result = "degraded"
	}
	observer.IncRosterLoad(s.companyID, result)
	observer.ObserveRosterLoadDuration(s.companyID, time.Since(startTime))
	observer.SetRosterSize(s.companyID, len(conversations))

	log.Info("Roster loaded",
		zap.Int("chats", len(chats)),
		zap.Int("log_rows", len(rows)),
		zap.Int("leads", len(leads)),
		zap.Int("conversations", len(conversations)),
		zap.Bool("degraded", degraded),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (s *RosterService) swap(conversations []model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = conversations
	s.loadedAt = utils.Now()
}

// Snapshot returns a copy of the current roster, optionally filtered by a
// case-insensitive substring match on name or phone.
func (s *RosterService) Snapshot(query string) []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Conversation, 0, len(s.snapshot))
	for _, conv := range s.snapshot {
		if needle != "" &&
			!strings.Contains(strings.ToLower(conv.Name), needle) &&
			!strings.Contains(strings.ToLower(conv.Phone), needle) {
			continue
		}
		out = append(out, conv)
	}
	return out
}

// LoadedAt reports when the current snapshot was built. Zero before the first
// load.
func (s *RosterService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// PatchAvatar sets the avatar URL of a conversation in the live snapshot.
// Used as the enrichment side channel; a stale phone is silently ignored.
func (s *RosterService) PatchAvatar(phone, url string) {
	norm := normalize.Normalize(phone)
	if norm == "" || url == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot {
		if normalize.Normalize(s.snapshot[i].Phone) == norm {
			s.snapshot[i].AvatarURL = url
			return
		}
	}
}

// MarkRead flags every incoming log row of one contact as read and zeroes the
// unread count in the snapshot.
func (s *RosterService) MarkRead(ctx context.Context, phone string) (int64, error) {
	ctx = tenant.WithCompanyID(ctx, s.companyID)
	affected, err := s.messageRepo.MarkConversationRead(ctx, phone)
	if err != nil {
		return 0, err
	}

	norm := normalize.Normalize(phone)
	s.mu.Lock()
	for i := range s.snapshot {
		if normalize.Normalize(s.snapshot[i].Phone) == norm {
			s.snapshot[i].UnreadCount = 0
			break
		}
	}
	s.mu.Unlock()
	return affected, nil
}
