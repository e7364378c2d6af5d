package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/types"
)

// DarkClass is the theme class put on the document root while dark mode is on.
const DarkClass = "dark"

// ThemeApplier applies the presentation theme outside the store state.
type ThemeApplier interface {
	ApplyTheme(dark bool)
}

// ThemeClassList is the class list of the document root, shared with every client that renders it.
type ThemeClassList struct {
	mu      sync.Mutex
	classes []string
}

var _ ThemeApplier = (*ThemeClassList)(nil)

func (t *ThemeClassList) ApplyTheme(dark bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.classes[:0]
	for _, c := range t.classes {
		if c != DarkClass {
			kept = append(kept, c)
		}
	}
	t.classes = kept
	if dark {
		t.classes = append(t.classes, DarkClass)
	}
}

// Classes returns a copy of the current class list.
func (t *ThemeClassList) Classes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.classes...)
}

// Has reports whether class is set.
func (t *ThemeClassList) Has(class string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.classes {
		if c == class {
			return true
		}
	}
	return false
}

// SetActiveTab records the selected navigation tab.
func (s *Store) SetActiveTab(tab string) {
	s.mu.Lock()
	s.state.ActiveTab = tab
	s.notifyLocked()
	s.mu.Unlock()
}

// ToggleDarkMode flips dark mode and applies the theme. Toggling twice restores both the
// flag and the theme.
func (s *Store) ToggleDarkMode() bool {
	s.mu.Lock()
	s.state.DarkMode = !s.state.DarkMode
	dark := s.state.DarkMode
	// Applied under the lock so concurrent toggles reach the theme in order.
	s.cfg.Theme.ApplyTheme(dark)
	s.notifyLocked()
	s.mu.Unlock()

	storeLogger.Debug().Bool("dark", dark).Msg("Dark mode toggled")
	return dark
}

// Settings returns the signed-in account's settings. The dark-mode flag reflects the
// current session.
func (s *Store) Settings(ctx context.Context) types.Result[types.Settings] {
	snap := s.Snapshot()
	if snap.AccountID == "" {
		return noAccount[types.Settings]()
	}

	settings := types.DefaultSettings()
	if s.cfg.Settings != nil {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		loaded, _, err := s.cfg.Settings.GetSettings(callCtx, snap.AccountID)
		if err != nil {
			storeLogger.Warn().Err(err).Str("account", snap.AccountID).Msg("Failed to load settings")
			return types.Fail[types.Settings](classify(err), fmt.Errorf("load settings: %w", err))
		}
		settings = loaded
	}
	settings.DarkMode = snap.DarkMode
	return types.OK(settings)
}

// UpdateSettings saves the signed-in account's settings and applies the dark-mode flag.
func (s *Store) UpdateSettings(ctx context.Context, settings types.Settings) types.Result[types.Settings] {
	const action = "update_settings"
	snap := s.Snapshot()
	if snap.AccountID == "" {
		return noAccount[types.Settings]()
	}
	if settings.RebalanceThreshold < types.MinRebalanceThreshold || settings.RebalanceThreshold > types.MaxRebalanceThreshold {
		err := fmt.Errorf("rebalance threshold must be between %d and %d, got %d",
			types.MinRebalanceThreshold, types.MaxRebalanceThreshold, settings.RebalanceThreshold)
		metrics.RecordStoreAction(action, string(types.StatusError), string(types.KindInvalidInput))
		return types.Fail[types.Settings](types.KindInvalidInput, err)
	}

	if s.cfg.Settings != nil {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		if err := s.cfg.Settings.SaveSettings(callCtx, snap.AccountID, settings); err != nil {
			res := types.Fail[types.Settings](classify(err), fmt.Errorf("save settings: %w", err))
			storeLogger.Error().Err(err).Str("account", snap.AccountID).Msg("Failed to save settings")
			s.recordOutcome(FieldSettings, action, res.Outcome(s.cfg.Now()))
			return res
		}
	}

	if settings.DarkMode != snap.DarkMode {
		s.ToggleDarkMode()
	}
	res := types.OK(settings)
	s.recordOutcome(FieldSettings, action, res.Outcome(s.cfg.Now()))
	return res
}

func (s *Store) recordOutcome(field Field, action string, outcome types.Outcome) {
	s.mu.Lock()
	s.state.Outcomes[field] = outcome
	s.notifyLocked()
	s.mu.Unlock()
	metrics.RecordStoreAction(action, string(outcome.Status), string(outcome.Kind))
}

// MemorySettings keeps settings in memory when no database is configured.
type MemorySettings struct {
	mu       sync.Mutex
	settings map[string]types.Settings
}

var _ SettingsStore = (*MemorySettings)(nil)

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{settings: make(map[string]types.Settings)}
}

func (m *MemorySettings) GetSettings(ctx context.Context, accountID string) (types.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[accountID]
	if !ok {
		return types.DefaultSettings(), false, nil
	}
	return s, true, nil
}

func (m *MemorySettings) SaveSettings(ctx context.Context, accountID string, s types.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[accountID] = s
	return nil
}
