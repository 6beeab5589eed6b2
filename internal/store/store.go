// Package store holds the current ingested tree and the selected file.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/temirov/dirtree/internal/content"
	"github.com/temirov/dirtree/internal/types"
)

const errorSelectFormat = "select %q: %w"

var (
	// ErrNoTree is returned when the store holds no tree.
	ErrNoTree = errors.New("no tree ingested")
	// ErrNotAFile is returned when a selection does not name a file node.
	ErrNotAFile = errors.New("path is not a file in the current tree")
)

// Snapshot is one completed ingestion.
type Snapshot struct {
	ID         string
	Root       *types.Node
	Contents   *content.Table
	Source     string
	IngestedAt time.Time
}

// FindContent returns the text of the file at path once it has loaded.
// Missing paths, directories, pending and failed files report false.
func (snapshot Snapshot) FindContent(path string) (string, bool) {
	return FindContent(snapshot.Root, snapshot.Contents, path)
}

// FindContent searches root depth first for the node whose path equals path
// and returns its loaded text from contents.
func FindContent(root *types.Node, contents *content.Table, path string) (string, bool) {
	node := types.FindNode(root, path)
	if !node.IsFile() {
		return "", false
	}
	return contents.Text(node.Path)
}

// Store is the process's single current tree and selection. The zero value
// is empty and ready to use.
type Store struct {
	mutex    sync.RWMutex
	current  *Snapshot
	selected string
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Replace swaps in a new snapshot wholesale and clears the selection.
func (store *Store) Replace(snapshot Snapshot) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.current = &snapshot
	store.selected = ""
}

// Clear discards the current tree and selection.
func (store *Store) Clear() {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.current = nil
	store.selected = ""
}

// Current returns the snapshot and whether one exists.
func (store *Store) Current() (Snapshot, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	if store.current == nil {
		return Snapshot{}, false
	}
	return *store.current, true
}

// Select marks path as the selected file.
func (store *Store) Select(path string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.current == nil {
		return fmt.Errorf(errorSelectFormat, path, ErrNoTree)
	}
	if !types.FindNode(store.current.Root, path).IsFile() {
		return fmt.Errorf(errorSelectFormat, path, ErrNotAFile)
	}
	store.selected = path
	return nil
}

// Selected returns the selected path, empty when nothing is selected.
func (store *Store) Selected() string {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return store.selected
}

// FindContent looks path up in the current snapshot.
func (store *Store) FindContent(path string) (string, bool) {
	snapshot, exists := store.Current()
	if !exists {
		return "", false
	}
	return snapshot.FindContent(path)
}

// ContentState returns the content state for a file path in the current snapshot.
func (store *Store) ContentState(path string) (types.ContentState, error) {
	snapshot, exists := store.Current()
	if !exists {
		return types.ContentState{}, ErrNoTree
	}
	if !types.FindNode(snapshot.Root, path).IsFile() {
		return types.ContentState{}, ErrNotAFile
	}
	state, _ := snapshot.Contents.Lookup(path)
	return state, nil
}
