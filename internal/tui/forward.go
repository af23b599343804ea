package tui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/events"
)

// Forwarder returns a router handler that feeds session events into p.
func Forwarder(p *tea.Program) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		env, err := events.Decode(msg.Payload)
		if err != nil {
			// a redelivery would fail the same way
			log.Error().Err(err).Str("component", "tui").Str("payload", string(msg.Payload)).Msg("dropping session event")
			return nil
		}
		if m := envelopeMsg(env); m != nil {
			p.Send(m)
		}
		return nil
	}
}

func envelopeMsg(env events.Envelope) tea.Msg {
	switch env.Kind {
	case events.KindChanged:
		if env.Change != nil {
			return sessionChangedMsg{change: *env.Change}
		}
	case events.KindNotification:
		if env.Notification != nil {
			return notificationMsg{notification: *env.Notification}
		}
	}
	return nil
}
