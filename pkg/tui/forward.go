package tui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
)

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// RegisterUIForwarder delivers UI-topic messages to the bubbletea program.
func RegisterUIForwarder(bus *Bus, p Sender) {
	bus.AddHandler("stackup-ui-forward", TopicUIMessages, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := decodeEnvelope(msg.Payload)
		if err != nil {
			return err
		}
		switch env.Type {
		case UITypeStateSnapshot:
			var snap StateSnapshot
			if err := env.decode(&snap); err != nil {
				return err
			}
			p.Send(StateSnapshotMsg{Snapshot: snap})
		case UITypeEventAppend:
			var entry EventLogEntry
			if err := env.decode(&entry); err != nil {
				return err
			}
			p.Send(EventLogAppendMsg{Entry: entry})
		}
		return nil
	})
}
