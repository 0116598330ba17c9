package tui

const (
	TopicStackEvents = "stackup.events"
	TopicUIMessages  = "stackup.ui.msgs"
)

const (
	DomainTypeStateSnapshot = "state.snapshot"
	DomainTypeServiceExit   = "service.exit.observed"
	DomainTypePhaseChanged  = "session.phase.changed"
)

const (
	UITypeStateSnapshot = "tui.state.snapshot"
	UITypeEventAppend   = "tui.event.append"
)
