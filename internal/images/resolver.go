package images

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/manga-lockstep/backend/internal/catalog"
)

// ErrUnreadable wraps any failure to read a page file.
var ErrUnreadable = errors.New("images: page file unreadable")

// DefaultContentType is served when neither the extension nor the content
// identify the image format.
const DefaultContentType = "image/webp"

// Image is the full content of one page file.
type Image struct {
	Path        string
	ContentType string
	Data        []byte
}

// Resolver maps (item, page) pairs to page file contents.
type Resolver struct {
	collection *catalog.Collection
}

func NewResolver(col *catalog.Collection) *Resolver {
	return &Resolver{collection: col}
}

// Resolve validates the indices and reads the page file. Out-of-range indices
// return an error matching catalog.ErrOutOfRange; read failures match
// ErrUnreadable.
func (r *Resolver) Resolve(ctx context.Context, item, page int) (*Image, error) {
	path, err := r.collection.PagePath(item, page)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}

	return &Image{
		Path:        path,
		ContentType: contentType(path, data),
		Data:        data,
	}, nil
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return DefaultContentType
}
