package styles

// Status icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconRunning = "▶"
	IconPending = "○"
	IconSystem  = "●"
	IconBullet  = "•"
	IconHealthy = "●"
	IconUnknown = "○"
)

// StatusIcon returns the icon for a process or container that is alive or not.
func StatusIcon(alive bool) string {
	if alive {
		return IconSuccess
	}
	return IconError
}

// LevelIcon maps a display level ("ok", "warn", anything else) to an icon.
func LevelIcon(level string) string {
	switch level {
	case "ok":
		return IconSuccess
	case "warn":
		return IconWarning
	default:
		return IconError
	}
}

// LogLevelIcon returns the icon for an event log level.
func LogLevelIcon(level string) string {
	switch level {
	case "error":
		return IconError
	case "warn":
		return IconWarning
	case "info":
		return IconInfo
	default:
		return IconBullet
	}
}

// HealthIcon returns the icon for a health status.
func HealthIcon(status string) string {
	switch status {
	case "healthy", "unhealthy":
		return IconHealthy
	default:
		return IconUnknown
	}
}
