package channel

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// TelegramPayload is a Bot API update.
type TelegramPayload struct {
	tgbotapi.Update
}

func (p *TelegramPayload) Channel() model.Channel { return model.ChannelTelegram }

func (p *TelegramPayload) normalize() model.CanonicalMessage {
	var out model.CanonicalMessage

	m := p.Message
	if m == nil {
		m = p.EditedMessage
	}
	if m == nil {
		return out
	}

	if m.From != nil {
		out.ExternalUserID = idString(m.From.ID)
		out.Username = m.From.UserName
		out.FirstName = m.From.FirstName
		out.LastName = m.From.LastName
		if out.Username == "" {
			out.Username = joinName(m.From.FirstName, m.From.LastName)
		}
	}
	if m.Contact != nil {
		out.Phone = m.Contact.PhoneNumber
	}

	out.MessageText = m.Text
	if out.MessageText == "" {
		out.MessageText = m.Caption
	}

	if n := len(m.Photo); n > 0 {
		out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentImage, Location: m.Photo[n-1].FileID})
	}
	if m.Video != nil {
		out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentVideo, Location: m.Video.FileID, Filename: m.Video.FileName})
	}
	if m.Voice != nil {
		out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentAudio, Location: m.Voice.FileID})
	}
	if m.Audio != nil {
		out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentAudio, Location: m.Audio.FileID, Filename: m.Audio.FileName})
	}
	if m.Document != nil {
		out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentDocument, Location: m.Document.FileID, Filename: m.Document.FileName})
	}

	out.ReceivedAt = utils.UnixToTime(int64(m.Date))
	return out
}
