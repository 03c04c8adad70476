package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNoGroup is returned when the catalog database has no matching group.
var ErrNoGroup = errors.New("catalog: no manga group found")

// DBSource describes where to read a collection from the desktop catalog's
// SQLite database.
type DBSource struct {
	Path    string // database file
	GroupID int64  // 0 selects the most recently added group
	BaseDir string // image paths in the database are relative to this directory
}

// LoadDB opens the catalog database read-only and builds a Collection from the
// entries of one group. Entries and images are ordered newest first, matching
// the catalog manager's own listing. Entries without images are skipped.
func LoadDB(ctx context.Context, src DBSource) (*Collection, error) {
	dsn, err := readOnlyDSN(src.Path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog db: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("opening catalog db %s: %w", src.Path, err)
	}

	groupID, err := selectGroup(ctx, db, src.GroupID)
	if err != nil {
		return nil, err
	}

	entries, err := queryEntries(ctx, db, groupID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		pages, err := queryImages(ctx, db, e.id)
		if err != nil {
			return nil, err
		}
		if len(pages) == 0 {
			log.Warn().Int64("entry_id", e.id).Str("name", e.item.Title).Msg("skipping catalog entry without images")
			continue
		}
		e.item.Pages = resolvePaths(src.BaseDir, pages)
		items = append(items, e.item)
	}

	log.Info().
		Int64("group_id", groupID).
		Int("items", len(items)).
		Msg("loaded collection from catalog db")

	return New(items)
}

// readOnlyDSN builds a file: URI for path. The path is made absolute so it
// never parses as a URI authority, and escaped so '?' and '#' stay in it.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving catalog db path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

func selectGroup(ctx context.Context, db *sql.DB, want int64) (int64, error) {
	var (
		id  int64
		err error
	)
	if want > 0 {
		err = db.QueryRowContext(ctx, `SELECT id FROM manga_groups WHERE id = ?`, want).Scan(&id)
	} else {
		err = db.QueryRowContext(ctx, `SELECT id FROM manga_groups ORDER BY added_on DESC, id DESC LIMIT 1`).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoGroup
	}
	if err != nil {
		return 0, fmt.Errorf("selecting manga group: %w", err)
	}
	return id, nil
}

type dbEntry struct {
	id   int64
	item Item
}

func queryEntries(ctx context.Context, db *sql.DB, groupID int64) ([]dbEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, score, comment FROM manga_entries WHERE manga_group = ? ORDER BY id DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying manga entries: %w", err)
	}
	defer rows.Close()

	var entries []dbEntry
	for rows.Next() {
		var (
			e       dbEntry
			name    sql.NullString
			comment sql.NullString
			score   sql.NullInt64
		)
		if err := rows.Scan(&e.id, &name, &score, &comment); err != nil {
			return nil, fmt.Errorf("scanning manga entry: %w", err)
		}
		e.item = Item{Title: name.String, Score: score.Int64, Comment: comment.String}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryImages(ctx context.Context, db *sql.DB, entryID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT path FROM images WHERE manga = ? ORDER BY id DESC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("querying images for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning image path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
