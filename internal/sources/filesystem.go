// Package sources adapts concrete inputs to the collector's entry and picked
// file interfaces.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/temirov/dirtree/internal/collector"
)

const (
	// DefaultPageSize is the number of children one directory listing call returns.
	DefaultPageSize = 128

	errorStatFormat      = "stat %s: %w"
	errorOpenDirFormat   = "open directory %s: %w"
	errorIsDirFormat     = "%s is a directory"
	errorReadPageFormat  = "read directory %s: %w"
	errorCloseDirFormat  = "close directory %s: %w"
	errorLinkedDirFormat = "%s: %w"
)

// ErrLinkedDirectory marks a symbolic link to a directory found below a
// dropped root. Such links are not followed, so link cycles cannot recurse.
var ErrLinkedDirectory = errors.New("symbolic link to a directory is not followed")

// FilesystemOptions configures entries backed by an afero filesystem.
type FilesystemOptions struct {
	PageSize int
}

// NewFilesystemEntry returns a dropped entry for path on fileSystem. The
// entry's name is the last element of the cleaned path.
func NewFilesystemEntry(fileSystem afero.Fs, path string, options FilesystemOptions) (collector.Entry, error) {
	cleaned := filepath.Clean(path)
	info, statErr := fileSystem.Stat(cleaned)
	if statErr != nil {
		return nil, fmt.Errorf(errorStatFormat, cleaned, statErr)
	}
	return newEntry(fileSystem, cleaned, filepath.Base(cleaned), info.IsDir(), options.normalized()), nil
}

func (options FilesystemOptions) normalized() FilesystemOptions {
	if options.PageSize <= 0 {
		options.PageSize = DefaultPageSize
	}
	return options
}

func newEntry(fileSystem afero.Fs, path string, name string, isDirectory bool, options FilesystemOptions) collector.Entry {
	if isDirectory {
		return filesystemDirectory{fileSystem: fileSystem, path: path, name: name, options: options}
	}
	return filesystemFile{fileSystem: fileSystem, path: path, name: name}
}

type filesystemFile struct {
	fileSystem afero.Fs
	path       string
	name       string
	link       bool
}

func (entry filesystemFile) Name() string { return entry.name }

// File checks the entry still names a regular file and returns a handle that
// opens it on demand.
func (entry filesystemFile) File(ctx context.Context) (collector.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, statErr := entry.fileSystem.Stat(entry.path)
	if statErr != nil {
		return nil, fmt.Errorf(errorStatFormat, entry.path, statErr)
	}
	if info.IsDir() {
		if entry.link {
			return nil, fmt.Errorf(errorLinkedDirFormat, entry.path, ErrLinkedDirectory)
		}
		return nil, fmt.Errorf(errorIsDirFormat, entry.path)
	}
	return filesystemHandle{fileSystem: entry.fileSystem, path: entry.path}, nil
}

type filesystemHandle struct {
	fileSystem afero.Fs
	path       string
}

func (handle filesystemHandle) Open() (io.ReadCloser, error) {
	return handle.fileSystem.Open(handle.path)
}

type filesystemDirectory struct {
	fileSystem afero.Fs
	path       string
	name       string
	options    FilesystemOptions
}

func (entry filesystemDirectory) Name() string { return entry.name }

func (entry filesystemDirectory) Reader() collector.DirectoryReader {
	return &filesystemReader{directory: entry}
}

// filesystemReader lists a directory PageSize entries per call using
// Readdir(n) and closes the directory once it is exhausted or fails.
type filesystemReader struct {
	directory filesystemDirectory
	handle    afero.File
	exhausted bool
}

func (reader *filesystemReader) ReadEntries(ctx context.Context) ([]collector.Entry, error) {
	if err := ctx.Err(); err != nil {
		reader.close()
		return nil, err
	}
	if reader.exhausted {
		return nil, nil
	}
	if reader.handle == nil {
		handle, openErr := reader.directory.fileSystem.Open(reader.directory.path)
		if openErr != nil {
			reader.exhausted = true
			return nil, fmt.Errorf(errorOpenDirFormat, reader.directory.path, openErr)
		}
		reader.handle = handle
	}

	infos, readErr := reader.handle.Readdir(reader.directory.options.PageSize)
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		reader.close()
		return nil, fmt.Errorf(errorReadPageFormat, reader.directory.path, readErr)
	}
	if errors.Is(readErr, io.EOF) || len(infos) == 0 {
		if closeErr := reader.close(); closeErr != nil {
			return nil, closeErr
		}
		if len(infos) == 0 {
			return nil, nil
		}
	}

	page := make([]collector.Entry, 0, len(infos))
	for _, info := range infos {
		childPath := filepath.Join(reader.directory.path, info.Name())
		if info.Mode()&os.ModeSymlink != 0 {
			page = append(page, filesystemFile{fileSystem: reader.directory.fileSystem, path: childPath, name: info.Name(), link: true})
			continue
		}
		page = append(page, newEntry(reader.directory.fileSystem, childPath, info.Name(), info.IsDir(), reader.directory.options))
	}
	return page, nil
}

func (reader *filesystemReader) close() error {
	reader.exhausted = true
	if reader.handle == nil {
		return nil
	}
	handle := reader.handle
	reader.handle = nil
	if closeErr := handle.Close(); closeErr != nil {
		return fmt.Errorf(errorCloseDirFormat, reader.directory.path, closeErr)
	}
	return nil
}
