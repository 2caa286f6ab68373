package mode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func autoSettings() Settings {
	return Settings{
		Preference:      PreferenceAuto,
		SwitchThreshold: 30 * time.Second,
		SyncInterval:    time.Minute,
	}
}

// captureTimer swaps the manager's timer source so tests control when the
// debounce fires.
func captureTimer(m *Manager) *func() {
	var pending func()
	m.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		pending = fn
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		return timer
	}
	return &pending
}

func TestNewManager_StartsOnline(t *testing.T) {
	m := NewManager(autoSettings())
	assert.Equal(t, Online, m.CurrentMode())
	assert.True(t, m.NetworkStatus())
}

func TestNewManager_OfflinePreferenceStartsOffline(t *testing.T) {
	s := autoSettings()
	s.Preference = PreferenceOffline
	m := NewManager(s)
	assert.Equal(t, Offline, m.CurrentMode())
}

func TestSetNetworkStatus_LossDebouncesBeforeOffline(t *testing.T) {
	m := NewManager(autoSettings())
	fire := captureTimer(m)

	m.SetNetworkStatus(false)
	assert.Equal(t, Online, m.CurrentMode(), "mode must hold during the debounce window")
	require.NotNil(t, *fire, "debounce timer must be armed")

	(*fire)()
	assert.Equal(t, Offline, m.CurrentMode())
}

func TestSetNetworkStatus_RecoveryDuringDebounceKeepsOnline(t *testing.T) {
	m := NewManager(autoSettings())
	fire := captureTimer(m)

	m.SetNetworkStatus(false)
	m.SetNetworkStatus(true) // link came back before the threshold

	// A stale expiry must not flip the mode.
	if *fire != nil {
		(*fire)()
	}
	assert.Equal(t, Online, m.CurrentMode())
}

func TestSetNetworkStatus_RecoveryIsImmediate(t *testing.T) {
	m := NewManager(autoSettings())
	fire := captureTimer(m)

	m.SetNetworkStatus(false)
	(*fire)()
	require.Equal(t, Offline, m.CurrentMode())

	m.SetNetworkStatus(true)
	assert.Equal(t, Online, m.CurrentMode(), "recovery has no debounce")
}

func TestSetNetworkStatus_RepeatedLossArmsOneTimer(t *testing.T) {
	m := NewManager(autoSettings())
	armed := 0
	m.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		armed++
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		return timer
	}

	m.SetNetworkStatus(false)
	m.SetNetworkStatus(false)
	m.SetNetworkStatus(false)
	assert.Equal(t, 1, armed)
}

func TestSetNetworkStatus_PinnedPreferencesIgnoreReachability(t *testing.T) {
	s := autoSettings()
	s.Preference = PreferenceOnline
	m := NewManager(s)

	m.SetNetworkStatus(false)
	assert.Equal(t, Online, m.CurrentMode())
	assert.False(t, m.NetworkStatus(), "raw reachability still tracks")

	s.Preference = PreferenceOffline
	m2 := NewManager(s)
	m2.SetNetworkStatus(true)
	assert.Equal(t, Offline, m2.CurrentMode())
}

func TestForceOverrides(t *testing.T) {
	m := NewManager(autoSettings())

	m.ForceOffline()
	assert.Equal(t, Offline, m.CurrentMode())

	m.ForceOnline()
	assert.Equal(t, Online, m.CurrentMode())
}

func TestSetPreference_ReDerivesMode(t *testing.T) {
	m := NewManager(autoSettings())
	fire := captureTimer(m)

	m.SetNetworkStatus(false)
	(*fire)()
	require.Equal(t, Offline, m.CurrentMode())

	s := autoSettings()
	s.Preference = PreferenceOnline
	m.SetPreference(s)
	assert.Equal(t, Online, m.CurrentMode())

	// Back to auto with the network still down: offline.
	m.SetPreference(autoSettings())
	assert.Equal(t, Offline, m.CurrentMode())
}

func TestSubscribe_DeliversTransitions(t *testing.T) {
	m := NewManager(autoSettings())
	fire := captureTimer(m)
	ch := m.Subscribe()

	m.SetNetworkStatus(false)
	(*fire)()
	m.SetNetworkStatus(true)

	var events []Mode
	for len(ch) > 0 {
		events = append(events, (<-ch).Mode)
	}
	assert.Equal(t, []Mode{Offline, Online}, events)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open, "unsubscribed channel must be closed")
}

func TestSubscribe_NoEventWithoutTransition(t *testing.T) {
	m := NewManager(autoSettings())
	ch := m.Subscribe()

	m.ForceOnline() // already online
	assert.Empty(t, ch)
}
