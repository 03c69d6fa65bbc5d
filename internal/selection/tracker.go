// Package selection tracks the user's text selection. A non-empty selection
// shadows page content as the active context until explicitly cleared.
package selection

import (
	"strings"
	"sync"
)

// State of the tracker.
type State int

const (
	Idle State = iota
	HasSelection
)

// Tracker is a two-state machine: Idle <-> HasSelection. Replacing an
// existing selection stays in HasSelection; there is no intermediate state.
type Tracker struct {
	mu        sync.Mutex
	text      string
	preserved string

	// OnReplace fires when a non-empty selection supersedes another while a
	// conversation may be underway. The owner decides whether to surface it.
	OnReplace func(text string)
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe feeds the tracker a selection change. An empty selection reverts
// to Idle only when no earlier selection was preserved; otherwise the
// preserved text keeps supplying context, matching the sidebar behavior of
// holding a selection while the user clicks around.
func (t *Tracker) Observe(text string) {
	text = strings.TrimSpace(text)

	t.mu.Lock()
	replaced := text != "" && t.preserved != "" && text != t.preserved
	if text != "" {
		t.text = text
		t.preserved = text
	} else if t.preserved == "" {
		t.text = ""
	}
	cb := t.OnReplace
	t.mu.Unlock()

	if replaced && cb != nil {
		cb(text)
	}
}

// Clear drops the selection and the preserved copy, reverting the active
// context to page content.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = ""
	t.preserved = ""
}

// Active returns the selection text verbatim when one is held.
func (t *Tracker) Active() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.preserved == "" {
		return "", false
	}
	return t.preserved, true
}

// State reports the current machine state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.preserved == "" {
		return Idle
	}
	return HasSelection
}
