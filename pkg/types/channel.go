// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package types

import (
	"strings"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Channel identifies the surface a conversation arrives on.
type Channel string

const (
	ChannelApp      Channel = "bayleaf_app"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPartner  Channel = "partner"
)

// Channels lists every accepted channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelApp, ChannelWhatsApp, ChannelPartner}
}

// Valid reports whether c is a recognized channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelApp, ChannelWhatsApp, ChannelPartner:
		return true
	default:
		return false
	}
}

// ParseChannel parses a case-insensitive string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", bayerr.Errorf(bayerr.CodeServerRequestInvalid, "invalid channel: %q", s)
	}
	return c, nil
}
