package model

import (
	"fmt"
	"strings"
)

// Channel is the closed set of messaging platforms the hub accepts.
type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelInstagram Channel = "instagram"
	ChannelVK        Channel = "vk"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelAvito     Channel = "avito"
	ChannelMax       Channel = "max"
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{
	ChannelTelegram,
	ChannelInstagram,
	ChannelVK,
	ChannelWhatsApp,
	ChannelAvito,
	ChannelMax,
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelInstagram, ChannelVK, ChannelWhatsApp, ChannelAvito, ChannelMax:
		return true
	}
	return false
}

// ParseChannel validates a raw tag against the channel enum.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// DisplayName is the human-facing platform name used in synthesized contact names.
func (c Channel) DisplayName() string {
	switch c {
	case ChannelTelegram:
		return "Telegram"
	case ChannelInstagram:
		return "Instagram"
	case ChannelVK:
		return "VK"
	case ChannelWhatsApp:
		return "WhatsApp"
	case ChannelAvito:
		return "Avito"
	case ChannelMax:
		return "Max"
	default:
		return string(c)
	}
}

// LeadSource is the source label stamped on leads created from this channel.
func (c Channel) LeadSource() string {
	return string(c) + "_integration"
}
