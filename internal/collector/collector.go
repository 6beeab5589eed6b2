// Package collector normalizes picked files and dropped entries into one
// sequence of relative path and file handle pairs.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/dirtree/internal/utils"
)

const (
	// DefaultMaxDepth bounds directory recursion in drop mode.
	DefaultMaxDepth = 64

	errorListingFormat         = "listing %s: %w: %w"
	errorMaterializationFormat = "materializing %s: %w: %w"
	errorDepthFormat           = "directory nesting exceeds %d levels"

	warningListingMessage         = "skipping unreadable directory"
	warningMaterializationMessage = "skipping unreadable file"
)

var (
	// ErrListing marks a directory whose children could not be enumerated.
	ErrListing = errors.New("directory listing failed")
	// ErrMaterialization marks a file entry that could not become a readable handle.
	ErrMaterialization = errors.New("file materialization failed")

	errUnsupportedEntry = errors.New("entry is neither a file nor a directory")
)

// FileHandle is a materialized file whose bytes can be read.
type FileHandle interface {
	Open() (io.ReadCloser, error)
}

// PickedFile is a file handle from a flat selection that already knows its
// slash-delimited path relative to the selected folder's parent.
type PickedFile interface {
	FileHandle
	RelativePath() string
}

// Entry is a dropped item before materialization. Concrete entries implement
// FileEntry or DirectoryEntry.
type Entry interface {
	Name() string
}

// FileEntry materializes into a readable handle.
type FileEntry interface {
	Entry
	File(ctx context.Context) (FileHandle, error)
}

// DirectoryEntry exposes a paginated listing of its children.
type DirectoryEntry interface {
	Entry
	Reader() DirectoryReader
}

// DirectoryReader returns one page of children per call. An empty page means
// the listing is exhausted.
type DirectoryReader interface {
	ReadEntries(ctx context.Context) ([]Entry, error)
}

// Pair binds a relative path to the handle its content will be loaded from.
type Pair struct {
	RelativePath string
	Handle       FileHandle
}

// Failure records one skipped branch.
type Failure struct {
	Path string
	Err  error
}

// Report lists every branch skipped during a drop-mode collection.
type Report struct {
	ListingFailures         []Failure
	MaterializationFailures []Failure
}

// Count returns the total number of skipped branches.
func (report Report) Count() int {
	return len(report.ListingFailures) + len(report.MaterializationFailures)
}

// CollectPicked passes a flat selection through unchanged, in input order.
func CollectPicked(files []PickedFile) []Pair {
	pairs := make([]Pair, 0, len(files))
	for _, file := range files {
		if file == nil {
			continue
		}
		pairs = append(pairs, Pair{RelativePath: file.RelativePath(), Handle: file})
	}
	return pairs
}

// Collector expands dropped entries.
type Collector struct {
	Logger   *zap.Logger
	MaxDepth int
}

// CollectDropped expands every entry concurrently and returns once every
// branch has finished. Listing and materialization failures are skipped and
// reported; only context cancellation aborts the collection. Pairs come back
// in listing order, depth first, regardless of which branch finished first.
func (collector Collector) CollectDropped(ctx context.Context, entries []Entry) ([]Pair, Report, error) {
	run := &expansion{
		logger:   collector.Logger,
		maxDepth: collector.MaxDepth,
	}
	if run.logger == nil {
		run.logger = zap.NewNop()
	}
	if run.maxDepth <= 0 {
		run.maxDepth = DefaultMaxDepth
	}

	group, groupCtx := errgroup.WithContext(ctx)
	slots := make([][]Pair, len(entries))
	for index, entry := range entries {
		group.Go(func() error {
			pairs, err := run.expand(groupCtx, entry, "", 0)
			slots[index] = pairs
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, Report{}, err
	}

	var pairs []Pair
	for _, slot := range slots {
		pairs = append(pairs, slot...)
	}
	return pairs, run.report, nil
}

type expansion struct {
	logger   *zap.Logger
	maxDepth int
	mutex    sync.Mutex
	report   Report
}

func (run *expansion) expand(ctx context.Context, entry Entry, prefix string, depth int) ([]Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	path := utils.JoinRelativePath(prefix, entry.Name())

	switch typed := entry.(type) {
	case DirectoryEntry:
		return run.expandDirectory(ctx, typed, path, depth)
	case FileEntry:
		handle, materializeErr := typed.File(ctx)
		if materializeErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			run.recordMaterialization(path, materializeErr)
			return nil, nil
		}
		return []Pair{{RelativePath: path, Handle: handle}}, nil
	default:
		run.recordMaterialization(path, errUnsupportedEntry)
		return nil, nil
	}
}

// expandDirectory drains the paginated listing and spawns one task per child
// as each page arrives. Slots are allocated in listing order so the joined
// result keeps that order.
func (run *expansion) expandDirectory(ctx context.Context, directory DirectoryEntry, path string, depth int) ([]Pair, error) {
	if depth >= run.maxDepth {
		run.recordListing(path, fmt.Errorf(errorDepthFormat, run.maxDepth))
		return nil, nil
	}

	reader := directory.Reader()
	group, groupCtx := errgroup.WithContext(ctx)
	var slots []*[]Pair

	for {
		page, listErr := reader.ReadEntries(groupCtx)
		if listErr != nil {
			if groupCtx.Err() == nil {
				run.recordListing(path, listErr)
			}
			break
		}
		if len(page) == 0 {
			break
		}
		for _, child := range page {
			slot := new([]Pair)
			slots = append(slots, slot)
			group.Go(func() error {
				pairs, err := run.expand(groupCtx, child, path, depth+1)
				*slot = pairs
				return err
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, slot := range slots {
		pairs = append(pairs, *slot...)
	}
	return pairs, nil
}

func (run *expansion) recordListing(path string, cause error) {
	wrapped := fmt.Errorf(errorListingFormat, path, ErrListing, cause)
	run.logger.Warn(warningListingMessage, zap.String("path", path), zap.Error(cause))
	run.mutex.Lock()
	defer run.mutex.Unlock()
	run.report.ListingFailures = append(run.report.ListingFailures, Failure{Path: path, Err: wrapped})
}

func (run *expansion) recordMaterialization(path string, cause error) {
	wrapped := fmt.Errorf(errorMaterializationFormat, path, ErrMaterialization, cause)
	run.logger.Warn(warningMaterializationMessage, zap.String("path", path), zap.Error(cause))
	run.mutex.Lock()
	defer run.mutex.Unlock()
	run.report.MaterializationFailures = append(run.report.MaterializationFailures, Failure{Path: path, Err: wrapped})
}
