// Package clipboard copies rendered trees and previews to the system clipboard.
package clipboard

import (
	"fmt"

	"github.com/atotto/clipboard"
)

const errorClipboardFormat = "write clipboard: %w"

// Copier copies textual data to the system clipboard.
type Copier interface {
	Copy(text string) error
}

// Service implements Copier using github.com/atotto/clipboard.
type Service struct {
	write func(string) error
}

// NewService returns a Service bound to the system clipboard.
func NewService() *Service {
	return &Service{write: clipboard.WriteAll}
}

// Copy writes text to the clipboard. Empty text is not copied.
func (service *Service) Copy(text string) error {
	if text == "" {
		return nil
	}
	if err := service.write(text); err != nil {
		return fmt.Errorf(errorClipboardFormat, err)
	}
	return nil
}

var _ Copier = (*Service)(nil)
