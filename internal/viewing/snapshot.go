package viewing

import (
	"fmt"

	"github.com/manga-lockstep/backend/internal/catalog"
)

// Snapshot is what every viewer renders: the current item's fields, the URL of
// the current page and 1-based positions as [current, total] pairs.
type Snapshot struct {
	MangaName    string `json:"manga_name"`
	PageSrc      string `json:"page_src"`
	MangaScore   int64  `json:"manga_score"`
	MangaComment string `json:"manga_comment"`
	MangaPos     [2]int `json:"manga_pos"`
	PagePos      [2]int `json:"page_pos"`
}

// PageURL is the gateway address of one page image.
func PageURL(item, page int) string {
	return fmt.Sprintf("/image?manga=%d&page=%d", item, page)
}

// Project derives a Snapshot from the collection and a valid cursor.
func Project(col *catalog.Collection, c Cursor) Snapshot {
	it, _ := col.Item(c.Item)
	return Snapshot{
		MangaName:    it.Title,
		PageSrc:      PageURL(c.Item, c.Page),
		MangaScore:   it.Score,
		MangaComment: it.Comment,
		MangaPos:     [2]int{c.Item + 1, col.Len()},
		PagePos:      [2]int{c.Page + 1, len(it.Pages)},
	}
}
