// Package channel maps raw webhook payloads of each supported messaging
// platform onto model.CanonicalMessage.
package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// Payload is a decoded webhook body of one specific channel. The set of
// implementations is closed: only this package can add variants.
type Payload interface {
	Channel() model.Channel
	normalize() model.CanonicalMessage
}

// ParsePayload validates ch against the channel enum and decodes raw into
// the matching payload variant.
func ParsePayload(ch model.Channel, raw []byte) (Payload, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedChannel, ch)
	}

	var p Payload
	switch ch {
	case model.ChannelTelegram:
		p = &TelegramPayload{}
	case model.ChannelInstagram:
		p = &InstagramPayload{}
	case model.ChannelVK:
		p = &VKPayload{}
	case model.ChannelWhatsApp:
		p = &WhatsAppPayload{}
	case model.ChannelAvito:
		p = &AvitoPayload{}
	case model.ChannelMax:
		p = &MaxPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedChannel, ch)
	}

	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty %s payload", apperrors.ErrBadRequest, ch)
	}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", apperrors.ErrBadRequest, ch, err)
	}
	return p, nil
}

// Normalize decodes raw for ch and maps it to the canonical shape, stamping
// the integration's ownership. Missing optional fields never fail.
func Normalize(ch model.Channel, raw []byte, integration *model.Integration) (model.CanonicalMessage, error) {
	p, err := ParsePayload(ch, raw)
	if err != nil {
		return model.CanonicalMessage{}, err
	}

	msg := p.normalize()
	msg.Channel = p.Channel()
	msg.ReceivedAt = utils.OrNow(msg.ReceivedAt)
	msg.RawPayload = append(json.RawMessage(nil), bytes.TrimSpace(raw)...)
	if integration != nil {
		msg.OwnerType = integration.OwnerType
		msg.OwnerID = integration.OwnerID
	}
	return msg, nil
}

// flexString accepts a JSON string or number. Platforms disagree on whether
// user ids are quoted.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
