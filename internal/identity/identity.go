// Package identity turns a canonical message into the contact fields a lead
// is created with.
package identity

import (
	"fmt"
	"strings"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

const fallbackIDPrefix = 8

// Contact is the normalized person behind a message.
type Contact struct {
	Name       string
	Phone      string
	Email      string
	PlatformID string
	Channel    model.Channel
}

// Usable reports whether the contact can back a lead: a name plus at least
// one way to reach the person.
func (c Contact) Usable() bool {
	if strings.TrimSpace(c.Name) == "" {
		return false
	}
	return c.Phone != "" || c.Email != "" || c.PlatformID != ""
}

// PhonePtr returns nil for an empty phone.
func (c Contact) PhonePtr() *string {
	if c.Phone == "" {
		return nil
	}
	p := c.Phone
	return &p
}

// PlatformIDPtr returns nil when the sender has no platform id.
func (c Contact) PlatformIDPtr() *string {
	if c.PlatformID == "" {
		return nil
	}
	id := c.PlatformID
	return &id
}

func (c Contact) EmailPtr() *string {
	if c.Email == "" {
		return nil
	}
	e := c.Email
	return &e
}

// DeriveIdentity computes the contact for msg. Structured fields win; the
// message text only fills in a missing phone or email.
func DeriveIdentity(msg model.CanonicalMessage) Contact {
	c := Contact{
		Name:       displayName(msg),
		PlatformID: strings.TrimSpace(msg.ExternalUserID),
		Channel:    msg.Channel,
	}

	if phone, ok := NormalizePhone(msg.Phone); ok {
		c.Phone = phone
	}

	if c.Phone == "" || c.Email == "" {
		found := ExtractContacts(msg.MessageText)
		if c.Phone == "" {
			c.Phone = found.Phone
		}
		if c.Email == "" {
			c.Email = found.Email
		}
	}
	return c
}

func displayName(msg model.CanonicalMessage) string {
	if u := strings.TrimSpace(msg.Username); u != "" {
		return u
	}
	if full := strings.TrimSpace(strings.TrimSpace(msg.FirstName) + " " + strings.TrimSpace(msg.LastName)); full != "" {
		return full
	}

	id := strings.TrimSpace(msg.ExternalUserID)
	if len(id) > fallbackIDPrefix {
		id = id[:fallbackIDPrefix]
	}
	if id == "" {
		return fmt.Sprintf("%s user", msg.Channel.DisplayName())
	}
	return fmt.Sprintf("%s user %s", msg.Channel.DisplayName(), id)
}
