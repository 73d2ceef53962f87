// Package sets manages the two uploadable custom sound sets. A slot is
// playable only when it holds exactly SetSize decoded buffers.
package sets

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"soundpairs/internal/audio"
)

// SetSize is the number of distinct sounds a playable set requires.
const SetSize = 18

// DefaultNames are the display names used until an admin renames a slot.
var DefaultNames = [2]string{"Custom Set 1", "Custom Set 2"}

var errBadSlot = errors.New("slot must be 1 or 2")

// Manager owns the decoded buffers and display names of both custom slots.
// The game engine borrows buffer references for the duration of a session
// and never mutates them.
type Manager struct {
	mu    sync.Mutex
	slots [2][]*audio.Buffer
	names [2]string
}

// NewManager returns a Manager with empty slots and default names.
func NewManager() *Manager {
	return &Manager{names: DefaultNames}
}

// Load decodes up to SetSize files into a slot, replacing its previous
// contents. Files that fail to decode are skipped, as are files beyond the
// SetSize limit; loading continues with the rest. Returns how many buffers
// were loaded and how many were skipped. Confirming a partial upload is the
// caller's concern — Load only records the outcome, and Ready stays false
// until the slot holds exactly SetSize.
func (m *Manager) Load(slot int, files [][]byte) (loaded, skipped int, err error) {
	if slot != 1 && slot != 2 {
		return 0, 0, errBadSlot
	}
	if len(files) > SetSize {
		skipped = len(files) - SetSize
		files = files[:SetSize]
	}

	// Decode outside the lock: a slow decode must not block readiness
	// checks or gameplay against the other slot.
	buffers := make([]*audio.Buffer, 0, len(files))
	for i, data := range files {
		buf, decodeErr := audio.Decode(data)
		if decodeErr != nil {
			slog.Warn("skipping undecodable file", "slot", slot, "index", i, "err", decodeErr)
			skipped++
			continue
		}
		buffers = append(buffers, buf)
	}

	m.mu.Lock()
	m.slots[slot-1] = buffers
	m.mu.Unlock()

	slog.Info("custom set loaded", "slot", slot, "loaded", len(buffers), "skipped", skipped)
	return len(buffers), skipped, nil
}

// Ready reports whether a slot holds exactly SetSize decoded buffers.
// Always computed from the live buffer count, never cached.
func (m *Manager) Ready(slot int) bool {
	return m.Count(slot) == SetSize
}

// Count returns the number of decoded buffers currently in a slot.
func (m *Manager) Count(slot int) int {
	if slot != 1 && slot != 2 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots[slot-1])
}

// Buffers returns the slot's decoded buffers. The returned slice is a copy;
// the buffers themselves are shared and must be treated as read-only.
func (m *Manager) Buffers(slot int) []*audio.Buffer {
	if slot != 1 && slot != 2 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*audio.Buffer, len(m.slots[slot-1]))
	copy(out, m.slots[slot-1])
	return out
}

// Clear empties a slot. If the cleared slot is the active game set, the
// caller must switch the engine back to the tone set.
func (m *Manager) Clear(slot int) {
	if slot != 1 && slot != 2 {
		return
	}
	m.mu.Lock()
	m.slots[slot-1] = nil
	m.mu.Unlock()
	slog.Info("custom set cleared", "slot", slot)
}

// Name returns the display name of a slot.
func (m *Manager) Name(slot int) string {
	if slot != 1 && slot != 2 {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[slot-1]
}

// SetName renames a slot. A blank name falls back to the default.
func (m *Manager) SetName(slot int, name string) error {
	if slot != 1 && slot != 2 {
		return errBadSlot
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultNames[slot-1]
	}
	m.mu.Lock()
	m.names[slot-1] = name
	m.mu.Unlock()
	return nil
}

// Names returns both display names.
func (m *Manager) Names() [2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names
}

// Status describes a slot for admin display, e.g. "Ready (18/18)".
func (m *Manager) Status(slot int) string {
	n := m.Count(slot)
	switch {
	case n == SetSize:
		return fmt.Sprintf("Ready (%d/%d)", n, SetSize)
	case n > 0:
		return fmt.Sprintf("Partial (%d/%d)", n, SetSize)
	default:
		return fmt.Sprintf("Empty (0/%d)", SetSize)
	}
}
