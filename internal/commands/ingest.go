// Package commands composes the collector, builder, store and loader into the
// ingestion entry points used by the CLI and the HTTP service.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/dirtree/internal/collector"
	"github.com/temirov/dirtree/internal/content"
	"github.com/temirov/dirtree/internal/store"
	"github.com/temirov/dirtree/internal/treebuilder"
	"github.com/temirov/dirtree/internal/types"
	"github.com/temirov/dirtree/internal/utils"
)

const (
	// SourceDropped labels snapshots built from dropped entries.
	SourceDropped = "drop"
	// SourcePicked labels snapshots built from picked files.
	SourcePicked = "picker"

	errorCollectFormat = "collecting dropped entries: %w"

	infoIngestedMessage = "tree ingested"
)

// ErrNothingToIngest is returned when collection yields no files. The store is
// not modified.
var ErrNothingToIngest = errors.New("nothing to ingest")

// Ingestor runs one ingestion from raw input to a stored tree whose content
// loads in the background. Exclude applies to every path. RootExclude holds
// patterns keyed by top-level entry name, such as those read from a dropped
// folder's ignore files; they apply only below that entry.
type Ingestor struct {
	Collector   collector.Collector
	Loader      content.Loader
	Logger      *zap.Logger
	Exclude     []string
	RootExclude map[string][]string
	RootName    string
}

// Ingestion is the outcome of one ingestion.
type Ingestion struct {
	Snapshot   store.Snapshot
	Batch      *content.Batch
	Report     collector.Report
	Rejections []treebuilder.Rejection
	Excluded   int
}

// IngestDropped expands dropped entries and replaces the store's tree. ctx
// bounds collection; loadCtx bounds content decoding, which continues after
// this call returns.
func (ingestor Ingestor) IngestDropped(ctx context.Context, loadCtx context.Context, target *store.Store, entries []collector.Entry) (*Ingestion, error) {
	pairs, report, collectErr := ingestor.Collector.CollectDropped(ctx, entries)
	if collectErr != nil {
		return nil, fmt.Errorf(errorCollectFormat, collectErr)
	}
	return ingestor.ingest(loadCtx, target, pairs, report, SourceDropped)
}

// IngestPicked builds a tree from a flat selection and replaces the store's tree.
func (ingestor Ingestor) IngestPicked(loadCtx context.Context, target *store.Store, files []collector.PickedFile) (*Ingestion, error) {
	return ingestor.ingest(loadCtx, target, collector.CollectPicked(files), collector.Report{}, SourcePicked)
}

func (ingestor Ingestor) ingest(loadCtx context.Context, target *store.Store, pairs []collector.Pair, report collector.Report, source string) (*Ingestion, error) {
	logger := ingestor.logger()

	kept, excluded := ingestor.filter(pairs)
	if len(kept) == 0 {
		return nil, ErrNothingToIngest
	}

	result := treebuilder.TreeBuilder{RootName: ingestor.RootName, Logger: logger}.Build(kept)
	if result.FileCount() == 0 {
		return nil, ErrNothingToIngest
	}

	paths := make([]string, 0, len(result.Bindings))
	for _, binding := range result.Bindings {
		paths = append(paths, binding.Path)
	}
	snapshot := store.Snapshot{
		ID:         uuid.New().String(),
		Root:       result.Exposed,
		Contents:   content.NewTable(paths),
		Source:     source,
		IngestedAt: time.Now().UTC(),
	}
	target.Replace(snapshot)

	loader := ingestor.Loader
	if loader.Logger == nil {
		loader.Logger = logger
	}
	batch := loader.Start(loadCtx, snapshot.Contents, result.Bindings)

	logger.Info(infoIngestedMessage,
		zap.String("id", snapshot.ID),
		zap.String("source", source),
		zap.String("root", snapshot.Root.Name),
		zap.Int("files", result.FileCount()),
		zap.Int("skipped", report.Count()),
		zap.Int("rejected", len(result.Rejections)),
		zap.Int("excluded", excluded),
	)

	return &Ingestion{
		Snapshot:   snapshot,
		Batch:      batch,
		Report:     report,
		Rejections: result.Rejections,
		Excluded:   excluded,
	}, nil
}

// filter drops pairs matched by the exclusion patterns. Exclude patterns are
// tested against the full relative path and against the path below its
// top-level folder; RootExclude patterns only against the latter, and only
// for their own folder.
func (ingestor Ingestor) filter(pairs []collector.Pair) ([]collector.Pair, int) {
	if len(ingestor.Exclude) == 0 && len(ingestor.RootExclude) == 0 {
		return pairs, 0
	}
	kept := make([]collector.Pair, 0, len(pairs))
	for _, pair := range pairs {
		if ingestor.excluded(pair.RelativePath) {
			continue
		}
		kept = append(kept, pair)
	}
	return kept, len(pairs) - len(kept)
}

func (ingestor Ingestor) excluded(relativePath string) bool {
	if utils.ShouldIgnoreByPath(relativePath, ingestor.Exclude) {
		return true
	}
	top, below, nested := strings.Cut(relativePath, types.PathSeparator)
	if !nested || below == "" {
		return false
	}
	return utils.ShouldIgnoreByPath(below, ingestor.Exclude) || utils.ShouldIgnoreByPath(below, ingestor.RootExclude[top])
}

func (ingestor Ingestor) logger() *zap.Logger {
	if ingestor.Logger == nil {
		return zap.NewNop()
	}
	return ingestor.Logger
}
