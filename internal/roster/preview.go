package roster

import (
	"strings"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// Media placeholders used when a gateway payload has no extractable text.
// The same literals appear as raw content in log rows written by the sender
// side, so IsPlaceholderPreview must recognize them there too.
const (
	placeholderImage    = "📷 Imagem"
	placeholderVideo    = "🎥 Vídeo"
	placeholderAudio    = "🎵 Áudio"
	placeholderDocument = "📄 Documento"
	placeholderSticker  = "🎭 Figurinha"
	placeholderLocation = "📍 Localização"
	placeholderContact  = "👤 Contato"
	placeholderMedia    = "📎 Mídia"
)

var placeholderSet = map[string]struct{}{
	placeholderImage:    {},
	placeholderVideo:    {},
	placeholderAudio:    {},
	placeholderDocument: {},
	placeholderSticker:  {},
	placeholderLocation: {},
	placeholderContact:  {},
	placeholderMedia:    {},
}

// IsPlaceholderPreview reports whether s is one of the fixed media
// placeholders rather than real message text.
func IsPlaceholderPreview(s string) bool {
	_, ok := placeholderSet[strings.TrimSpace(s)]
	return ok
}

// PreviewFromPayload derives a human-readable preview from the gateway's
// typed last-message object. Text content is preferred in a fixed priority
// order across all payload kinds; when none is present the media-type
// placeholder is substituted. The result is capped at model.PreviewMaxLen
// runes.
func PreviewFromPayload(p *model.MessagePayload) string {
	if p == nil {
		return ""
	}
	if text := extractText(p); text != "" {
		return utils.TruncateRunes(text, model.PreviewMaxLen)
	}
	return placeholderFor(p)
}

func extractText(p *model.MessagePayload) string {
	if s := strings.TrimSpace(p.Conversation); s != "" {
		return s
	}
	if p.ExtendedTextMessage != nil {
		if s := strings.TrimSpace(p.ExtendedTextMessage.Text); s != "" {
			return s
		}
	}
	for _, media := range []*model.MediaMessage{p.ImageMessage, p.VideoMessage, p.AudioMessage, p.StickerMessage} {
		if media != nil {
			if s := strings.TrimSpace(media.Caption); s != "" {
				return s
			}
		}
	}
	if doc := p.DocumentMessage; doc != nil {
		for _, s := range []string{doc.Caption, doc.FileName, doc.Title} {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	if c := p.ContactMessage; c != nil {
		if s := strings.TrimSpace(c.DisplayName); s != "" {
			return s
		}
		if s := strings.TrimSpace(c.Vcard); s != "" {
			return s
		}
	}
	if b := p.ButtonsResponseMessage; b != nil {
		if s := strings.TrimSpace(b.SelectedDisplayText); s != "" {
			return s
		}
		if s := strings.TrimSpace(b.SelectedButtonID); s != "" {
			return s
		}
	}
	if l := p.ListResponseMessage; l != nil {
		if s := strings.TrimSpace(l.Title); s != "" {
			return s
		}
		if l.SingleSelect != nil {
			if s := strings.TrimSpace(l.SingleSelect.SelectedRowID); s != "" {
				return s
			}
		}
	}
	if loc := p.LocationMessage; loc != nil {
		if s := strings.TrimSpace(loc.Name); s != "" {
			return s
		}
		if s := strings.TrimSpace(loc.Address); s != "" {
			return s
		}
	}
	return ""
}

func placeholderFor(p *model.MessagePayload) string {
	switch {
	case p.ImageMessage != nil:
		return placeholderImage
	case p.VideoMessage != nil:
		return placeholderVideo
	case p.AudioMessage != nil:
		return placeholderAudio
	case p.DocumentMessage != nil:
		return placeholderDocument
	case p.StickerMessage != nil:
		return placeholderSticker
	case p.LocationMessage != nil:
		return placeholderLocation
	case p.ContactMessage != nil:
		return placeholderContact
	case p.ButtonsResponseMessage != nil || p.ListResponseMessage != nil:
		return placeholderMedia
	default:
		// Unrecognized payload kinds still read as media, not as blank.
		return placeholderMedia
	}
}
