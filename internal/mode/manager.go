// Package mode tracks the terminal's effective operating mode.
//
// The manager combines raw network reachability with a user preference
// (online, offline, or auto) into an effective mode of Online or Offline,
// and fans mode changes out to subscribers. Loss of connectivity under the
// auto preference is debounced by a configurable threshold so a flapping
// link does not thrash the mode; recovery switches back immediately so
// syncing resumes promptly.
package mode

import (
	"log/slog"
	"sync"
	"time"
)

// Mode is the effective operating mode.
type Mode string

const (
	Online  Mode = "online"
	Offline Mode = "offline"
)

// Preference is the user-configured mode policy.
type Preference string

const (
	// PreferenceOnline never auto-transitions to Offline even if the
	// network drops: mutations still queue locally, but sync attempts
	// fail fast and surface an error rather than silently deferring.
	PreferenceOnline Preference = "online"

	// PreferenceOffline never auto-transitions to Online; remote sync
	// only occurs on the configured interval timer, and the orchestrator
	// checks reachability itself before acting.
	PreferenceOffline Preference = "offline"

	// PreferenceAuto follows reachability, with a debounce threshold on
	// loss and immediate recovery.
	PreferenceAuto Preference = "auto"
)

// Settings carries the auto-mode tuning knobs.
type Settings struct {
	Preference      Preference
	SwitchThreshold time.Duration // debounce before auto-switching to Offline
	SyncInterval    time.Duration // scheduler tick for background sync
}

// Event is the process-wide mode-change notification.
type Event struct {
	Mode Mode `json:"mode"`
}

// Manager owns the mode state machine.
//
// Thread-safety: all methods are safe for concurrent use. Subscriber
// channels are buffered; a subscriber that falls behind drops events
// rather than blocking the manager.
type Manager struct {
	mu        sync.Mutex
	mode      Mode
	netUp     bool
	settings  Settings
	subs      []chan Event
	debounce  *time.Timer
	afterFunc func(time.Duration, func()) *time.Timer // swapped in tests
}

// NewManager creates a manager starting Online with the given settings.
func NewManager(settings Settings) *Manager {
	if settings.Preference == "" {
		settings.Preference = PreferenceAuto
	}
	m := &Manager{
		mode:      Online,
		netUp:     true,
		settings:  settings,
		afterFunc: time.AfterFunc,
	}
	if settings.Preference == PreferenceOffline {
		m.mode = Offline
	}
	return m
}

// CurrentMode returns the effective mode.
func (m *Manager) CurrentMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// NetworkStatus returns raw reachability as last reported.
func (m *Manager) NetworkStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.netUp
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SetPreference replaces the user preference and re-evaluates the mode.
// Switching to the offline preference forces Offline; switching to the
// online preference forces Online; auto re-derives from reachability.
func (m *Manager) SetPreference(settings Settings) {
	m.mu.Lock()
	m.settings = settings
	m.cancelDebounceLocked()

	var target Mode
	switch settings.Preference {
	case PreferenceOffline:
		target = Offline
	case PreferenceOnline:
		target = Online
	default:
		target = Offline
		if m.netUp {
			target = Online
		}
	}
	m.transitionLocked(target)
	m.mu.Unlock()
}

// ForceOnline overrides auto-detection and switches to Online.
func (m *Manager) ForceOnline() {
	m.mu.Lock()
	m.cancelDebounceLocked()
	m.transitionLocked(Online)
	m.mu.Unlock()
}

// ForceOffline overrides auto-detection and switches to Offline.
func (m *Manager) ForceOffline() {
	m.mu.Lock()
	m.cancelDebounceLocked()
	m.transitionLocked(Offline)
	m.mu.Unlock()
}

// SetNetworkStatus feeds a reachability observation into the state
// machine. Called by whatever probes the backend (the run loop pings on
// the sync interval).
//
// Loss under auto starts the debounce timer; if the network is still down
// at expiry, the mode drops to Offline. Recovery cancels any pending
// debounce and, under auto, raises Online immediately.
func (m *Manager) SetNetworkStatus(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if up == m.netUp {
		return
	}
	m.netUp = up

	if m.settings.Preference != PreferenceAuto {
		// online-only and offline-first preferences pin the mode; only
		// raw reachability is updated.
		return
	}

	if up {
		m.cancelDebounceLocked()
		m.transitionLocked(Online)
		return
	}

	if m.debounce != nil {
		return // already counting down
	}
	threshold := m.settings.SwitchThreshold
	slog.Info("network lost, starting offline debounce", "threshold", threshold)
	m.debounce = m.afterFunc(threshold, m.debounceExpired)
}

func (m *Manager) debounceExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debounce = nil
	if !m.netUp && m.settings.Preference == PreferenceAuto {
		m.transitionLocked(Offline)
	}
}

// Subscribe registers a mode-change listener. The returned channel carries
// every effective mode change until Unsubscribe is called with it.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subs {
		if sub == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// transitionLocked changes the mode and notifies subscribers if the
// effective mode actually changed. Callers hold m.mu.
func (m *Manager) transitionLocked(target Mode) {
	if m.mode == target {
		return
	}
	m.mode = target
	slog.Info("mode changed", "mode", target)
	ev := Event{Mode: target}
	for _, sub := range m.subs {
		select {
		case sub <- ev:
		default: // slow subscriber drops the event
		}
	}
}

func (m *Manager) cancelDebounceLocked() {
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
}
