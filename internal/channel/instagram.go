package channel

import (
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// InstagramPayload is a Messenger-platform webhook for Instagram direct messages.
type InstagramPayload struct {
	Object string           `json:"object"`
	Entry  []instagramEntry `json:"entry"`
}

type instagramEntry struct {
	ID        string               `json:"id"`
	Time      int64                `json:"time"`
	Messaging []instagramMessaging `json:"messaging"`
}

type instagramMessaging struct {
	Sender    instagramUser     `json:"sender"`
	Recipient instagramUser     `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *instagramMessage `json:"message,omitempty"`
}

type instagramUser struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

type instagramMessage struct {
	MID         string                `json:"mid"`
	Text        string                `json:"text,omitempty"`
	IsEcho      bool                  `json:"is_echo,omitempty"`
	Attachments []instagramAttachment `json:"attachments,omitempty"`
}

type instagramAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

func (p *InstagramPayload) Channel() model.Channel { return model.ChannelInstagram }

func (p *InstagramPayload) normalize() model.CanonicalMessage {
	var out model.CanonicalMessage
	if len(p.Entry) == 0 || len(p.Entry[0].Messaging) == 0 {
		return out
	}

	ev := p.Entry[0].Messaging[0]
	out.ExternalUserID = ev.Sender.ID
	out.Username = ev.Sender.Username
	out.ReceivedAt = utils.UnixToTimeWithMilliseconds(ev.Timestamp)

	if ev.Message == nil || ev.Message.IsEcho {
		return out
	}
	out.MessageText = ev.Message.Text

	for _, a := range ev.Message.Attachments {
		kind := model.AttachmentDocument
		switch a.Type {
		case "image":
			kind = model.AttachmentImage
		case "video":
			kind = model.AttachmentVideo
		case "audio":
			kind = model.AttachmentAudio
		}
		out.Attachments = append(out.Attachments, model.Attachment{Kind: kind, Location: a.Payload.URL})
	}
	return out
}
