package channel

import (
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// WhatsAppPayload is a Cloud API webhook notification.
type WhatsAppPayload struct {
	Object string          `json:"object"`
	Entry  []whatsAppEntry `json:"entry"`
}

type whatsAppEntry struct {
	ID      string `json:"id"`
	Changes []struct {
		Field string        `json:"field"`
		Value whatsAppValue `json:"value"`
	} `json:"changes"`
}

type whatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []whatsAppContact `json:"contacts"`
	Messages         []whatsAppMessage `json:"messages"`
}

type whatsAppContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type whatsAppMessage struct {
	From      string         `json:"from"`
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Text      *struct{ Body string `json:"body"` } `json:"text,omitempty"`
	Image     *whatsAppMedia `json:"image,omitempty"`
	Video     *whatsAppMedia `json:"video,omitempty"`
	Document  *whatsAppMedia `json:"document,omitempty"`
	Audio     *whatsAppMedia `json:"audio,omitempty"`
}

// whatsAppMedia carries a media id; the download URL must be resolved
// separately through the Graph API.
type whatsAppMedia struct {
	ID       string `json:"id"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

func (p *WhatsAppPayload) Channel() model.Channel { return model.ChannelWhatsApp }

func (p *WhatsAppPayload) normalize() model.CanonicalMessage {
	var out model.CanonicalMessage
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return out
	}

	value := p.Entry[0].Changes[0].Value
	if len(value.Contacts) > 0 {
		out.Username = value.Contacts[0].Profile.Name
	}
	if len(value.Messages) == 0 {
		if len(value.Contacts) > 0 {
			out.ExternalUserID = value.Contacts[0].WaID
			out.Phone = value.Contacts[0].WaID
		}
		return out
	}

	m := value.Messages[0]
	out.ExternalUserID = m.From
	out.Phone = m.From
	out.ReceivedAt = utils.UnixStringToTime(m.Timestamp)

	if m.Text != nil {
		out.MessageText = m.Text.Body
	}

	media := []struct {
		kind model.AttachmentKind
		m    *whatsAppMedia
	}{
		{model.AttachmentImage, m.Image},
		{model.AttachmentVideo, m.Video},
		{model.AttachmentDocument, m.Document},
		{model.AttachmentAudio, m.Audio},
	}
	for _, item := range media {
		if item.m == nil {
			continue
		}
		if out.MessageText == "" {
			out.MessageText = item.m.Caption
		}
		out.Attachments = append(out.Attachments, model.Attachment{Kind: item.kind, Location: item.m.ID, Filename: item.m.Filename})
	}
	return out
}
