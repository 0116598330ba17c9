package tui

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RegisterDomainToUITransformer turns domain events into UI messages and event
// log lines. Snapshot loads are logged only when their status changes.
func RegisterDomainToUITransformer(bus *Bus) {
	lastStatus := ""
	bus.AddHandler("stackup-domain-to-ui", TopicStackEvents, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := decodeEnvelope(msg.Payload)
		if err != nil {
			return err
		}
		logLine := func(entry EventLogEntry) error {
			return publishEnvelope(bus.Publisher, TopicUIMessages, UITypeEventAppend, entry)
		}

		switch env.Type {
		case DomainTypeStateSnapshot:
			var snap StateSnapshot
			if err := env.decode(&snap); err != nil {
				return err
			}
			if err := publishEnvelope(bus.Publisher, TopicUIMessages, UITypeStateSnapshot, snap); err != nil {
				return err
			}

			status, level := "state: no session", LogLevelInfo
			switch {
			case snap.Error != "":
				status, level = "state: "+snap.Error, LogLevelWarn
			case snap.Exists && snap.State != nil:
				status = fmt.Sprintf("state: %s session, %d services", snap.State.Workflow, len(snap.State.Services))
			}
			if status == lastStatus {
				return nil
			}
			lastStatus = status
			return logLine(EventLogEntry{At: snap.At, Source: "system", Level: level, Text: status})

		case DomainTypeServiceExit:
			var ev ServiceExitObserved
			if err := env.decode(&ev); err != nil {
				return err
			}
			text := fmt.Sprintf("service exit: %s", ev.Name)
			switch {
			case ev.PID > 0:
				text = fmt.Sprintf("%s pid=%d", text, ev.PID)
			case ev.Container != "":
				text = fmt.Sprintf("%s container=%s", text, ev.Container)
			}
			if ev.Reason != "" {
				text = fmt.Sprintf("%s (%s)", text, ev.Reason)
			}
			return logLine(EventLogEntry{At: ev.When, Source: ev.Name, Level: LogLevelError, Text: text})

		case DomainTypePhaseChanged:
			var ev PhaseChanged
			if err := env.decode(&ev); err != nil {
				return err
			}
			text := "phase: " + ev.To
			if ev.From != "" {
				text = fmt.Sprintf("phase: %s -> %s", ev.From, ev.To)
			}
			return logLine(EventLogEntry{At: ev.When, Source: "session", Level: LogLevelInfo, Text: text})

		default:
			return nil
		}
	})
}
