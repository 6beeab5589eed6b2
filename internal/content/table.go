// Package content loads file text asynchronously into a write-once table
// keyed by node path.
package content

import (
	"errors"
	"fmt"
	"sync"

	"github.com/temirov/dirtree/internal/types"
)

const (
	errorPathStateFormat = "%w: %s"
	errorResolveFormat   = "resolve %s: %w"
)

var (
	// ErrAlreadyResolved is returned when a path's content is resolved twice.
	ErrAlreadyResolved = errors.New("content already resolved")
	// ErrUnknownPath is returned when resolving a path the table was not created with.
	ErrUnknownPath = errors.New("content path unknown")
	// ErrUnsettledState is returned when a resolution would leave a path NotLoaded.
	ErrUnsettledState = errors.New("state must be loaded or failed")
)

// Table holds one ContentState per file path. Every path starts NotLoaded and
// leaves that state exactly once.
type Table struct {
	mutex   sync.RWMutex
	states  map[string]types.ContentState
	pending int
	settled chan struct{}
}

// NewTable creates a table with every path NotLoaded.
func NewTable(paths []string) *Table {
	table := &Table{
		states:  make(map[string]types.ContentState, len(paths)),
		settled: make(chan struct{}),
	}
	for _, path := range paths {
		if _, exists := table.states[path]; exists {
			continue
		}
		table.states[path] = types.ContentState{Status: types.ContentNotLoaded}
		table.pending++
	}
	if table.pending == 0 {
		close(table.settled)
	}
	return table
}

// Resolve records the final state for path.
func (table *Table) Resolve(path string, state types.ContentState) error {
	if state.Status == types.ContentNotLoaded {
		return fmt.Errorf(errorResolveFormat, path, ErrUnsettledState)
	}
	table.mutex.Lock()
	defer table.mutex.Unlock()
	current, exists := table.states[path]
	if !exists {
		return fmt.Errorf(errorPathStateFormat, ErrUnknownPath, path)
	}
	if current.Status != types.ContentNotLoaded {
		return fmt.Errorf(errorPathStateFormat, ErrAlreadyResolved, path)
	}
	table.states[path] = state
	table.pending--
	if table.pending == 0 {
		close(table.settled)
	}
	return nil
}

// Lookup returns the state for path and whether the path is known.
func (table *Table) Lookup(path string) (types.ContentState, bool) {
	if table == nil {
		return types.ContentState{}, false
	}
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	state, exists := table.states[path]
	return state, exists
}

// Text returns the loaded text for path; it reports false while pending, on
// failure, and for unknown paths.
func (table *Table) Text(path string) (string, bool) {
	state, exists := table.Lookup(path)
	if !exists || state.Status != types.ContentLoaded {
		return "", false
	}
	return state.Text, true
}

// Pending returns the number of paths still NotLoaded.
func (table *Table) Pending() int {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	return table.pending
}

// Len returns the number of paths tracked.
func (table *Table) Len() int {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	return len(table.states)
}

// Settled is closed once every path has been resolved.
func (table *Table) Settled() <-chan struct{} {
	return table.settled
}
