package frontend

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/manga-lockstep/backend/internal/viewing"
)

//go:embed static/*
var staticFiles embed.FS

// PageData is the template input for the viewer page.
type PageData struct {
	Snapshot viewing.Snapshot
}

// Frontend serves the viewer page and its static assets, either from the
// binary or, in dev mode, from a directory on disk.
type Frontend struct {
	files fs.FS
	dev   bool
	page  *template.Template
}

// New returns a Frontend over the embedded assets, or over dir when dir is
// non-empty. In dev mode the page template is re-parsed on every render.
func New(dir string) (*Frontend, error) {
	f := &Frontend{}
	if dir != "" {
		f.files = os.DirFS(dir)
		f.dev = true
	} else {
		sub, err := fs.Sub(staticFiles, "static")
		if err != nil {
			return nil, err
		}
		f.files = sub
	}

	page, err := f.parse()
	if err != nil {
		return nil, err
	}
	f.page = page
	return f, nil
}

func (f *Frontend) parse() (*template.Template, error) {
	return template.ParseFS(f.files, "index.html")
}

// RenderPage writes the viewer page with snap inlined as JSON data.
func (f *Frontend) RenderPage(w io.Writer, snap viewing.Snapshot) error {
	page := f.page
	if f.dev {
		p, err := f.parse()
		if err != nil {
			return err
		}
		page = p
	}
	return page.Execute(w, PageData{Snapshot: snap})
}

// Assets serves the static files; mount it under a stripped prefix.
func (f *Frontend) Assets() http.Handler {
	return http.FileServer(http.FS(f.files))
}
