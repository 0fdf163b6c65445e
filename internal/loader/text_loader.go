package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"

	"speechqa/internal/domain"
)

// TextLoader reads a whole UTF-8 text file as a single document.
type TextLoader struct{}

func NewTextLoader() *TextLoader { return &TextLoader{} }

// Load returns the file content as a Document. The document ID is derived
// from the cleaned absolute path, so loading the same file twice yields the
// same ID.
func (l *TextLoader) Load(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return domain.Document{}, fmt.Errorf("load %s: content is not valid UTF-8", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return domain.Document{
		ID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String(),
		Path:    path,
		Content: string(data),
	}, nil
}
