package domain

import "fmt"

// Channel enumerates the supported inbound/outbound channels. The set is
// closed: adding a channel means adding a constant here plus one normalizer
// mapping and one sender implementation.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelChat    Channel = "chat"
	ChannelWebForm Channel = "web_form"
)

// Channels lists every known channel.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelChat, ChannelWebForm}
}

// ParseChannel validates a channel tag.
func ParseChannel(raw string) (Channel, error) {
	switch Channel(raw) {
	case ChannelEmail, ChannelChat, ChannelWebForm:
		return Channel(raw), nil
	default:
		return "", fmt.Errorf("unknown channel %q", raw)
	}
}
