package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// fakeUser is reused across a run so that a share of deliveries hits the
// duplicate path instead of creating a new lead.
type fakeUser struct {
	id    int64
	name  string
	login string
	phone string
}

func newFakeUser() fakeUser {
	return fakeUser{
		id:    gofakeit.Int64()&0xffffffff + 1,
		name:  gofakeit.Name(),
		login: strings.ToLower(gofakeit.Username()),
		phone: "+7" + gofakeit.Numerify("9#########"),
	}
}

type payloadFactory struct {
	users    []fakeUser
	keywords []string
	// keywordRatio is the share of messages carrying a trigger keyword.
	keywordRatio float64
}

func newPayloadFactory(userPool int, keywords []string, keywordRatio float64) *payloadFactory {
	if userPool <= 0 {
		userPool = 1
	}
	users := make([]fakeUser, userPool)
	for i := range users {
		users[i] = newFakeUser()
	}
	return &payloadFactory{users: users, keywords: keywords, keywordRatio: keywordRatio}
}

func (f *payloadFactory) text() string {
	s := gofakeit.Sentence(8)
	if len(f.keywords) > 0 && rand.Float64() < f.keywordRatio {
		s = fmt.Sprintf("%s %s", s, f.keywords[rand.IntN(len(f.keywords))])
	}
	return s
}

// Build returns a webhook body shaped the way ch delivers it.
func (f *payloadFactory) Build(ch model.Channel) ([]byte, error) {
	u := f.users[rand.IntN(len(f.users))]
	now := utils.Now()

	var payload any
	switch ch {
	case model.ChannelTelegram:
		payload = tgbotapi.Update{
			UpdateID: rand.IntN(1 << 30),
			Message: &tgbotapi.Message{
				MessageID: rand.IntN(1 << 30),
				From:      &tgbotapi.User{ID: u.id, FirstName: u.name, UserName: u.login},
				Chat:      &tgbotapi.Chat{ID: u.id, Type: "private"},
				Date:      int(now.Unix()),
				Text:      f.text(),
			},
		}
	case model.ChannelVK:
		payload = map[string]any{
			"type":     "message_new",
			"group_id": 1,
			"object": map[string]any{
				"message": map[string]any{"from_id": u.id, "text": f.text(), "date": now.Unix()},
			},
		}
	case model.ChannelAvito:
		payload = map[string]any{
			"user_id":    u.id,
			"user_name":  u.name,
			"phone":      u.phone,
			"text":       f.text(),
			"created_at": utils.FormatISO8601(now),
		}
	case model.ChannelMax:
		payload = map[string]any{
			"sender_id":   u.id,
			"sender_name": u.name,
			"phone":       u.phone,
			"content":     f.text(),
			"timestamp":   now.Unix(),
		}
	case model.ChannelWhatsApp:
		waID := strings.TrimPrefix(u.phone, "+")
		payload = map[string]any{
			"object": "whatsapp_business_account",
			"entry": []any{map[string]any{
				"id": "1",
				"changes": []any{map[string]any{
					"field": "messages",
					"value": map[string]any{
						"messaging_product": "whatsapp",
						"contacts":          []any{map[string]any{"wa_id": waID, "profile": map[string]any{"name": u.name}}},
						"messages": []any{map[string]any{
							"from":      waID,
							"id":        "wamid." + gofakeit.UUID(),
							"timestamp": fmt.Sprint(now.Unix()),
							"type":      "text",
							"text":      map[string]any{"body": f.text()},
						}},
					},
				}},
			}},
		}
	case model.ChannelInstagram:
		payload = map[string]any{
			"object": "instagram",
			"entry": []any{map[string]any{
				"id":   "1",
				"time": now.UnixMilli(),
				"messaging": []any{map[string]any{
					"sender":    map[string]any{"id": fmt.Sprint(u.id), "username": u.login},
					"recipient": map[string]any{"id": "1"},
					"timestamp": now.Add(-time.Second).UnixMilli(),
					"message":   map[string]any{"mid": gofakeit.UUID(), "text": f.text()},
				}},
			}},
		}
	default:
		return nil, fmt.Errorf("no payload factory for channel %q", ch)
	}
	return json.Marshal(payload)
}
