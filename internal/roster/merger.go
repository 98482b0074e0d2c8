// Package roster folds the gateway chat list, the persisted message log and
// the lead registry into one deduplicated, recency-ordered conversation list.
// The merge is pure given its inputs; all I/O happens in the caller except for
// the optional lead-directory fallback consulted during phone tie-breaks.
package roster

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/normalize"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// NoNameSentinel is the display name used when nothing better is known.
const NoNameSentinel = "Sem nome"

// logTolerance is the negative window inside which a log row still wins the
// preview over the gateway: near-ties and strictly newer rows take the log.
const logTolerance = 5 * time.Second

// LeadDirectory is the authoritative fallback for resolving which phone
// belongs to a merged name when the in-memory lookup tables miss.
type LeadDirectory interface {
	FindLeadByName(ctx context.Context, name string) (*model.Lead, error)
}

// Merger combines gateway chats, log rows and leads into one Conversation per
// real-world contact.
type Merger struct {
	directory LeadDirectory // may be nil
}

// NewMerger creates a Merger. directory may be nil; tie-breaks then rely on
// the lead lookup tables alone.
func NewMerger(directory LeadDirectory) *Merger {
	return &Merger{directory: directory}
}

// Input carries one load cycle's raw material. LogAvailable is false when the
// message-log query failed; unread counts then fall back to whatever the
// gateway reported.
type Input struct {
	Chats        []model.GatewayChat
	Rows         []model.MessageRow
	Leads        []model.Lead
	LogAvailable bool
}

// draft is a conversation under construction. gatewayUnread keeps the count
// the gateway claimed, used only when the log is unavailable.
type draft struct {
	conv          model.Conversation
	normPhone     string
	gatewayUnread int
}

type leadTables struct {
	nameByPhone  map[string]string // normalized phone -> lead name
	phoneByName  map[string]string // lowercased name -> standardized phone
	stageByPhone map[string]string // normalized phone -> funnel stage
}

// Merge runs the full reconciliation: project gateway chats, dedup by phone,
// dedup by lead-compatible name, overlay the persisted log, sort by recency.
func (m *Merger) Merge(ctx context.Context, in Input) []model.Conversation {
	tables := buildLeadTables(in.Leads)

	drafts := make([]*draft, 0, len(in.Chats))
	for i := range in.Chats {
		if strings.TrimSpace(in.Chats[i].ID) == "" {
			logger.FromContext(ctx).Warn("Skipping gateway chat with empty id")
			continue
		}
		drafts = append(drafts, m.project(&in.Chats[i], tables))
	}

	drafts = m.dedupByPhone(ctx, drafts, tables)
	drafts = m.dedupByName(ctx, drafts, tables)
	m.overlayLog(drafts, in.Rows, in.LogAvailable)

	out := make([]model.Conversation, len(drafts))
	for i, d := range drafts {
		out[i] = d.conv
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

func buildLeadTables(leads []model.Lead) *leadTables {
	t := &leadTables{
		nameByPhone:  make(map[string]string, len(leads)),
		phoneByName:  make(map[string]string, len(leads)),
		stageByPhone: make(map[string]string, len(leads)),
	}
	for i := range leads {
		lead := &leads[i]
		norm := normalize.Normalize(lead.Phone)
		if norm == "" {
			continue
		}
		name := strings.TrimSpace(lead.Name)
		if name != "" {
			t.nameByPhone[norm] = name
			key := utils.NormalizeKey(name)
			if prev, ok := t.phoneByName[key]; !ok ||
				(!normalize.HasCountryPrefix(prev) && normalize.HasCountryPrefix(lead.Phone)) {
				t.phoneByName[key] = normalize.Standardize(lead.Phone)
			}
		}
		if lead.Stage != "" {
			t.stageByPhone[norm] = lead.Stage
		}
	}
	return t
}

// project turns one gateway chat into a draft conversation. Unread stays zero
// here; the log overlay fills it in.
func (m *Merger) project(chat *model.GatewayChat, tables *leadTables) *draft {
	norm := normalize.Normalize(chat.ID)

	name := tables.nameByPhone[norm]
	if name == "" && !isPlaceholderName(chat.DisplayName) {
		name = strings.TrimSpace(chat.DisplayName)
	}
	if name == "" {
		name = norm
	}
	if name == "" {
		name = NoNameSentinel
	}

	at := utils.Now()
	if ts := chat.LastMessageTimestamp; ts > 0 {
		// Some gateway builds report epoch milliseconds.
		if ts > 1_000_000_000_000 {
			at = utils.UnixToTimeWithMilliseconds(ts)
		} else {
			at = utils.UnixToTime(ts)
		}
	}

	return &draft{
		conv: model.Conversation{
			Phone:              normalize.Standardize(chat.ID),
			Name:               name,
			LastMessagePreview: PreviewFromPayload(chat.LastMessage),
			LastMessageAt:      at,
			Stage:              tables.stageByPhone[norm],
		},
		normPhone:     norm,
		gatewayUnread: chat.UnreadCount,
	}
}

// isPlaceholderName reports whether a gateway display name carries no real
// information: empty, or one of the generic self placeholders.
func isPlaceholderName(s string) bool {
	switch utils.NormalizeKey(s) {
	case "", "you", "self", "você", "voce":
		return true
	}
	return false
}

func (m *Merger) dedupByPhone(ctx context.Context, drafts []*draft, tables *leadTables) []*draft {
	out := make([]*draft, 0, len(drafts))
	index := make(map[string]int, len(drafts))
	for _, d := range drafts {
		if i, ok := index[d.normPhone]; ok {
			out[i] = m.mergeDrafts(ctx, out[i], d, tables)
			continue
		}
		index[d.normPhone] = len(out)
		out = append(out, d)
	}
	return out
}

// dedupByName catches the same contact reachable via two distinct numbers.
// Merging is attempted only when the lead registry does not contradict it:
// two phones each mapped to a different lead name are genuinely distinct.
func (m *Merger) dedupByName(ctx context.Context, drafts []*draft, tables *leadTables) []*draft {
	out := make([]*draft, 0, len(drafts))
	index := make(map[string]int, len(drafts))
	for _, d := range drafts {
		name := strings.TrimSpace(d.conv.Name)
		key := utils.NormalizeKey(name)
		if key == "" || name == NoNameSentinel || normalize.LooksLikePhone(name) {
			out = append(out, d)
			continue
		}
		if i, ok := index[key]; ok && !leadContradiction(out[i], d, tables) {
			out[i] = m.mergeDrafts(ctx, out[i], d, tables)
			continue
		}
		if _, ok := index[key]; !ok {
			index[key] = len(out)
		}
		out = append(out, d)
	}
	return out
}

// leadContradiction reports whether the registry names both phones and
// disagrees about who they belong to.
func leadContradiction(a, b *draft, tables *leadTables) bool {
	an := tables.nameByPhone[a.normPhone]
	bn := tables.nameByPhone[b.normPhone]
	return an != "" && bn != "" && utils.NormalizeKey(an) != utils.NormalizeKey(bn)
}

// mergeDrafts applies the tie-break policy, identical for both dedup passes.
func (m *Merger) mergeDrafts(ctx context.Context, existing, incoming *draft, tables *leadTables) *draft {
	name := m.resolveName(existing, incoming, tables)
	phone := m.resolvePhone(ctx, name, existing, incoming, tables)

	newer, older := existing, incoming
	if incoming.conv.LastMessageAt.After(existing.conv.LastMessageAt) {
		newer, older = incoming, existing
	}
	preview := newer.conv.LastMessagePreview
	if (preview == "" || IsPlaceholderPreview(preview)) &&
		older.conv.LastMessagePreview != "" && !IsPlaceholderPreview(older.conv.LastMessagePreview) {
		preview = older.conv.LastMessagePreview
	}

	stage := firstNonEmpty(
		existing.conv.Stage,
		incoming.conv.Stage,
		tables.stageByPhone[existing.normPhone],
		tables.stageByPhone[incoming.normPhone],
	)

	merged := &draft{
		conv: model.Conversation{
			Phone:              phone,
			Name:               name,
			LastMessagePreview: preview,
			LastMessageAt:      newer.conv.LastMessageAt,
			UnreadCount:        maxInt(existing.conv.UnreadCount, incoming.conv.UnreadCount),
			Stage:              stage,
		},
		normPhone:     normalize.Normalize(phone),
		gatewayUnread: maxInt(existing.gatewayUnread, incoming.gatewayUnread),
	}
	return merged
}

// resolveName: lead-registry name beats everything; a human-looking name
// beats bare digits; length breaks the remaining ties.
func (m *Merger) resolveName(existing, incoming *draft, tables *leadTables) string {
	if n := tables.nameByPhone[existing.normPhone]; n != "" {
		return n
	}
	if n := tables.nameByPhone[incoming.normPhone]; n != "" {
		return n
	}
	e, i := existing.conv.Name, incoming.conv.Name
	ePhone := e == "" || e == NoNameSentinel || normalize.LooksLikePhone(e)
	iPhone := i == "" || i == NoNameSentinel || normalize.LooksLikePhone(i)
	switch {
	case !ePhone && iPhone:
		return e
	case ePhone && !iPhone:
		return i
	case len(i) > len(e):
		return i
	default:
		return e
	}
}

// resolvePhone: the lead-confirmed number for the resolved name wins,
// consulting the directory when the in-memory table misses; otherwise the
// domestic country prefix, then digit-string completeness, break the tie.
func (m *Merger) resolvePhone(ctx context.Context, name string, existing, incoming *draft, tables *leadTables) string {
	if name != "" && name != NoNameSentinel && !normalize.LooksLikePhone(name) {
		if p := tables.phoneByName[utils.NormalizeKey(name)]; p != "" {
			return p
		}
		if m.directory != nil {
			lead, err := m.directory.FindLeadByName(ctx, name)
			if err != nil {
				logger.FromContext(ctx).Debug("Lead directory lookup failed during merge",
					zap.String("name", name), zap.Error(err))
			} else if lead != nil && lead.Phone != "" {
				return normalize.Standardize(lead.Phone)
			}
		}
	}

	e, i := existing.conv.Phone, incoming.conv.Phone
	eHas, iHas := normalize.HasCountryPrefix(e), normalize.HasCountryPrefix(i)
	switch {
	case eHas && !iHas:
		return e
	case iHas && !eHas:
		return i
	case len(normalize.BareDigits(i)) > len(normalize.BareDigits(e)):
		return i
	default:
		return e
	}
}

// overlayLog replaces gateway-derived previews and fills unread counts from
// the persisted log, per contact.
func (m *Merger) overlayLog(drafts []*draft, rows []model.MessageRow, logAvailable bool) {
	if !logAvailable {
		for _, d := range drafts {
			d.conv.UnreadCount = d.gatewayUnread
			if d.conv.UnreadCount < 0 {
				d.conv.UnreadCount = 0
			}
		}
		return
	}

	byPhone := make(map[string][]*model.MessageRow, len(drafts))
	for i := range rows {
		norm := normalize.Normalize(rows[i].Phone)
		byPhone[norm] = append(byPhone[norm], &rows[i])
	}

	for _, d := range drafts {
		contactRows := byPhone[d.normPhone]
		if len(contactRows) == 0 {
			d.conv.UnreadCount = 0
			continue
		}
		sort.SliceStable(contactRows, func(i, j int) bool {
			return contactRows[i].RowTime().After(contactRows[j].RowTime())
		})

		// Most recent row with real text; bare media placeholders stored as
		// content do not qualify.
		var textual *model.MessageRow
		for _, r := range contactRows {
			if s := strings.TrimSpace(r.Content); s != "" && !IsPlaceholderPreview(s) {
				textual = r
				break
			}
		}
		candidate := contactRows[0].Content
		if textual != nil {
			candidate = textual.Content
		}

		logTime := contactRows[0].RowTime()
		gatewayTextless := d.conv.LastMessagePreview == "" || IsPlaceholderPreview(d.conv.LastMessagePreview)

		if logTime.After(d.conv.LastMessageAt.Add(-logTolerance)) {
			if strings.TrimSpace(candidate) != "" {
				d.conv.LastMessagePreview = utils.TruncateRunes(candidate, model.PreviewMaxLen)
			}
			if logTime.After(d.conv.LastMessageAt) {
				d.conv.LastMessageAt = logTime
			}
		} else if gatewayTextless && textual != nil {
			// A textual log preview always supersedes a media-only gateway
			// preview, regardless of the tolerance window.
			d.conv.LastMessagePreview = utils.TruncateRunes(textual.Content, model.PreviewMaxLen)
		}

		unread := 0
		for _, r := range contactRows {
			if r.IsUnread() {
				unread++
			}
		}
		d.conv.UnreadCount = unread
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
