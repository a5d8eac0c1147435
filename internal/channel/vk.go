package channel

import (
	"encoding/json"
	"fmt"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// VKPayload is a Callback API event. Current API versions nest the message
// under object.message; older ones put its fields directly in object.
type VKPayload struct {
	Type    string          `json:"type"`
	GroupID int64           `json:"group_id"`
	Object  json.RawMessage `json:"object"`
}

type vkObject struct {
	Message *vkMessage `json:"message,omitempty"`
	vkMessage
}

type vkMessage struct {
	FromID      int64          `json:"from_id"`
	Text        string         `json:"text"`
	Date        int64          `json:"date"`
	Attachments []vkAttachment `json:"attachments,omitempty"`
}

type vkAttachment struct {
	Type  string `json:"type"`
	Photo *struct {
		Sizes []vkPhotoSize `json:"sizes"`
	} `json:"photo,omitempty"`
	Video *struct {
		ID      int64  `json:"id"`
		OwnerID int64  `json:"owner_id"`
		Title   string `json:"title"`
		Player  string `json:"player,omitempty"`
	} `json:"video,omitempty"`
	Doc *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"doc,omitempty"`
}

type vkPhotoSize struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (p *VKPayload) Channel() model.Channel { return model.ChannelVK }

func (p *VKPayload) normalize() model.CanonicalMessage {
	var out model.CanonicalMessage
	if len(p.Object) == 0 {
		return out
	}

	var obj vkObject
	if err := json.Unmarshal(p.Object, &obj); err != nil {
		return out
	}
	m := &obj.vkMessage
	if obj.Message != nil {
		m = obj.Message
	}

	out.ExternalUserID = idString(m.FromID)
	out.MessageText = m.Text
	out.ReceivedAt = utils.UnixToTime(m.Date)

	for _, a := range m.Attachments {
		switch {
		case a.Type == "photo" && a.Photo != nil:
			if best, ok := largestPhoto(a.Photo.Sizes); ok {
				out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentImage, Location: best.URL})
			}
		case a.Type == "video" && a.Video != nil:
			loc := a.Video.Player
			if loc == "" {
				loc = fmt.Sprintf("video%d_%d", a.Video.OwnerID, a.Video.ID)
			}
			out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentVideo, Location: loc, Filename: a.Video.Title})
		case a.Type == "doc" && a.Doc != nil:
			out.Attachments = append(out.Attachments, model.Attachment{Kind: model.AttachmentDocument, Location: a.Doc.URL, Filename: a.Doc.Title})
		}
	}
	return out
}

func largestPhoto(sizes []vkPhotoSize) (vkPhotoSize, bool) {
	if len(sizes) == 0 {
		return vkPhotoSize{}, false
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best, true
}
