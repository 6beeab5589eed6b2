package content

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/dirtree/internal/tokenizer"
	"github.com/temirov/dirtree/internal/treebuilder"
	"github.com/temirov/dirtree/internal/types"
	"github.com/temirov/dirtree/internal/utils"
)

const (
	// DefaultConcurrency bounds simultaneous decodes.
	DefaultConcurrency = 8
	// DefaultMaxFileBytes caps the size of a decoded file.
	DefaultMaxFileBytes int64 = 10 << 20

	errorOpenFormat     = "open %s: %w"
	errorReadFormat     = "read %s: %w"
	errorTooLargeFormat = "%w: %s exceeds %s"
	errorNotTextFormat  = "%w: %s"

	warningDecodeMessage       = "content unavailable"
	warningTokenCountMessage   = "failed to count tokens"
	debugResolveSkippedMessage = "content resolve skipped"
)

var (
	// ErrNotText marks content that is binary or not valid UTF-8.
	ErrNotText = errors.New("content is not text")
	// ErrTooLarge marks content larger than the configured limit.
	ErrTooLarge = errors.New("content too large")

	errNoHandle = errors.New("no file handle bound")
)

// Loader decodes bound file handles into a Table.
type Loader struct {
	Logger       *zap.Logger
	Concurrency  int
	MaxFileBytes int64
	TokenCounter tokenizer.Counter
}

// Batch tracks one Start call.
type Batch struct {
	table *Table
	done  chan struct{}
	err   error
}

// Wait blocks until every binding has been resolved. It returns the context
// error when the batch was canceled; decode failures are recorded in the
// table and never returned.
func (batch *Batch) Wait() error {
	<-batch.done
	return batch.err
}

// Done is closed when the batch finishes.
func (batch *Batch) Done() <-chan struct{} {
	return batch.done
}

// Table returns the table the batch writes to.
func (batch *Batch) Table() *Table {
	return batch.table
}

// Start decodes every binding on its own goroutine, at most Concurrency at a
// time, and returns immediately. Each goroutine writes only its own path, so
// readers observe NotLoaded until that path resolves. Bindings left unstarted
// by a canceled context resolve as failed.
func (loader Loader) Start(ctx context.Context, table *Table, bindings []treebuilder.Binding) *Batch {
	logger := loader.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := loader.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	batch := &Batch{table: table, done: make(chan struct{})}
	go func() {
		defer close(batch.done)

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(concurrency)
		for index, binding := range bindings {
			if groupCtx.Err() != nil {
				loader.abandon(logger, table, bindings[index:], groupCtx.Err())
				break
			}
			group.Go(func() error {
				state := loader.decode(groupCtx, logger, binding)
				if state.Status == types.ContentFailed {
					logger.Warn(warningDecodeMessage, zap.String("path", binding.Path), zap.String("reason", state.Reason))
				}
				if resolveErr := table.Resolve(binding.Path, state); resolveErr != nil {
					logger.Debug(debugResolveSkippedMessage, zap.String("path", binding.Path), zap.Error(resolveErr))
				}
				return nil
			})
		}
		_ = group.Wait()
		batch.err = ctx.Err()
	}()
	return batch
}

func (loader Loader) abandon(logger *zap.Logger, table *Table, bindings []treebuilder.Binding, cause error) {
	for _, binding := range bindings {
		state := types.ContentState{Status: types.ContentFailed, Reason: cause.Error()}
		if resolveErr := table.Resolve(binding.Path, state); resolveErr != nil {
			logger.Debug(debugResolveSkippedMessage, zap.String("path", binding.Path), zap.Error(resolveErr))
		}
	}
}

// decode reads the handle fully and accepts only UTF-8 text.
func (loader Loader) decode(ctx context.Context, logger *zap.Logger, binding treebuilder.Binding) types.ContentState {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if binding.Handle == nil {
		return failed(errNoHandle)
	}
	maxBytes := loader.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	reader, openErr := binding.Handle.Open()
	if openErr != nil {
		return failed(fmt.Errorf(errorOpenFormat, binding.Path, openErr))
	}
	defer reader.Close()

	data, readErr := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if readErr != nil {
		return failed(fmt.Errorf(errorReadFormat, binding.Path, readErr))
	}
	if int64(len(data)) > maxBytes {
		return failed(fmt.Errorf(errorTooLargeFormat, ErrTooLarge, binding.Path, utils.FormatFileSize(maxBytes)))
	}
	if utils.IsBinary(data) {
		return failed(fmt.Errorf(errorNotTextFormat, ErrNotText, binding.Path))
	}

	state := types.ContentState{
		Status:    types.ContentLoaded,
		Text:      string(data),
		SizeBytes: int64(len(data)),
	}
	if loader.TokenCounter != nil {
		countResult, countErr := tokenizer.CountString(loader.TokenCounter, state.Text)
		if countErr != nil {
			logger.Warn(warningTokenCountMessage, zap.String("path", binding.Path), zap.Error(countErr))
		} else if countResult.Counted {
			state.Tokens = countResult.Tokens
		}
	}
	return state
}

func failed(cause error) types.ContentState {
	return types.ContentState{Status: types.ContentFailed, Reason: cause.Error()}
}
