package channel

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// MaxPayload is the flat message object of the generic messenger.
type MaxPayload struct {
	SenderID   flexString `json:"sender_id"`
	SenderName string     `json:"sender_name"`
	Phone      string     `json:"phone"`
	Content    string     `json:"content"`
	Timestamp  int64      `json:"timestamp,omitempty"`
	Files      []struct {
		URL      string `json:"url"`
		Name     string `json:"name"`
		MimeType string `json:"mime_type"`
	} `json:"files,omitempty"`
}

func (p *MaxPayload) Channel() model.Channel { return model.ChannelMax }

func (p *MaxPayload) normalize() model.CanonicalMessage {
	out := model.CanonicalMessage{
		ExternalUserID: string(p.SenderID),
		Username:       p.SenderName,
		Phone:          p.Phone,
		MessageText:    p.Content,
		ReceivedAt:     utils.UnixToTime(p.Timestamp),
	}
	for _, f := range p.Files {
		out.Attachments = append(out.Attachments, model.Attachment{
			Kind:     attachmentKind(f.MimeType, f.Name),
			Location: f.URL,
			Filename: f.Name,
		})
	}
	return out
}

// attachmentKind classifies by declared MIME type, resolving aliases through
// the mimetype registry, then by the filename extension.
func attachmentKind(declared, filename string) model.AttachmentKind {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" {
		if m := mimetype.Lookup(declared); m != nil {
			declared = m.String()
		}
		if kind, ok := kindFromMIME(declared); ok {
			return kind
		}
	}
	if ext := path.Ext(filename); ext != "" {
		if kind, ok := kindFromMIME(mime.TypeByExtension(strings.ToLower(ext))); ok {
			return kind
		}
	}
	return model.AttachmentDocument
}

func kindFromMIME(m string) (model.AttachmentKind, bool) {
	switch {
	case strings.HasPrefix(m, "image/"):
		return model.AttachmentImage, true
	case strings.HasPrefix(m, "video/"):
		return model.AttachmentVideo, true
	case strings.HasPrefix(m, "audio/"):
		return model.AttachmentAudio, true
	case strings.Contains(m, "/"):
		return model.AttachmentDocument, true
	}
	return "", false
}
