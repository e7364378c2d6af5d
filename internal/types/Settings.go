package types

const (
	MinRebalanceThreshold = 1
	MaxRebalanceThreshold = 20
)

// Settings are the per-account preferences shown on the settings page.
type Settings struct {
	Notifications      bool `json:"notifications"`
	AutoRebalance      bool `json:"autoRebalance"`
	SecurityAlerts     bool `json:"securityAlerts"`
	RebalanceThreshold int  `json:"rebalanceThreshold"` // Drift in percent before auto-rebalance kicks in
	DarkMode           bool `json:"darkMode"`
}

// DefaultSettings mirrors the initial state of the settings page.
func DefaultSettings() Settings {
	return Settings{
		Notifications:      true,
		AutoRebalance:      false,
		SecurityAlerts:     true,
		RebalanceThreshold: 5,
		DarkMode:           false,
	}
}
