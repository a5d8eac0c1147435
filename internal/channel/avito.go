package channel

import (
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// AvitoPayload is the flat message object forwarded by the classifieds
// messenger webhook.
type AvitoPayload struct {
	UserID    flexString `json:"user_id"`
	UserName  string     `json:"user_name"`
	Phone     string     `json:"phone"`
	Text      string     `json:"text"`
	CreatedAt string     `json:"created_at"`
}

func (p *AvitoPayload) Channel() model.Channel { return model.ChannelAvito }

func (p *AvitoPayload) normalize() model.CanonicalMessage {
	out := model.CanonicalMessage{
		ExternalUserID: string(p.UserID),
		Username:       p.UserName,
		Phone:          p.Phone,
		MessageText:    p.Text,
	}
	if ts, ok := utils.ParseISO8601(p.CreatedAt); ok {
		out.ReceivedAt = ts
	}
	return out
}
