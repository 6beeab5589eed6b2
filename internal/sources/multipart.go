package sources

import (
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/temirov/dirtree/internal/collector"
)

const (
	contentDispositionHeader = "Content-Disposition"
	filenameParameter        = "filename"
)

// FromMultipart wraps uploaded form files as picked files. Directory pickers
// send each file's relative path as its filename; the standard library keeps
// only the base name on FileHeader.Filename, so the path is read back from the
// part's Content-Disposition header.
func FromMultipart(headers []*multipart.FileHeader) []collector.PickedFile {
	picked := make([]collector.PickedFile, 0, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		picked = append(picked, multipartFile{header: header, relativePath: multipartRelativePath(header)})
	}
	return picked
}

func multipartRelativePath(header *multipart.FileHeader) string {
	disposition := header.Header.Get(contentDispositionHeader)
	if disposition != "" {
		if _, parameters, parseErr := mime.ParseMediaType(disposition); parseErr == nil {
			if filename := parameters[filenameParameter]; filename != "" {
				return strings.ReplaceAll(filename, "\\", "/")
			}
		}
	}
	return header.Filename
}

type multipartFile struct {
	header       *multipart.FileHeader
	relativePath string
}

func (file multipartFile) RelativePath() string { return file.relativePath }

func (file multipartFile) Open() (io.ReadCloser, error) {
	return file.header.Open()
}
