package sources

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/temirov/dirtree/internal/collector"
)

// FromZip lists the regular files of an archive as picked files. Member names
// are already slash-delimited relative paths; directory members are skipped
// because the builder derives directories from file paths.
func FromZip(reader *zip.Reader) []collector.PickedFile {
	if reader == nil {
		return nil
	}
	picked := make([]collector.PickedFile, 0, len(reader.File))
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/") {
			continue
		}
		picked = append(picked, zipFile{file: file})
	}
	return picked
}

type zipFile struct {
	file *zip.File
}

func (member zipFile) RelativePath() string {
	return strings.TrimPrefix(member.file.Name, "./")
}

func (member zipFile) Open() (io.ReadCloser, error) {
	return member.file.Open()
}
