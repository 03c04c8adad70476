package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCollection = errors.New("catalog: collection has no items")
	ErrNoPages         = errors.New("catalog: item has no pages")
	ErrOutOfRange      = errors.New("catalog: index out of range")
)

// Item is one reviewed manga: its display fields plus the ordered page files.
type Item struct {
	Title   string   `yaml:"title"`
	Score   int64    `yaml:"score"`
	Comment string   `yaml:"comment"`
	Pages   []string `yaml:"pages"`
}

// Collection is the ordered, read-only set of items shared by every viewer.
// It is built once at startup and never mutated, so it needs no locking.
type Collection struct {
	items []Item
}

// New validates items and returns an immutable Collection holding a private
// copy of them.
func New(items []Item) (*Collection, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCollection
	}

	copied := make([]Item, len(items))
	for i, it := range items {
		if len(it.Pages) == 0 {
			return nil, fmt.Errorf("item %d (%q): %w", i, it.Title, ErrNoPages)
		}
		it.Pages = append([]string(nil), it.Pages...)
		copied[i] = it
	}

	return &Collection{items: copied}, nil
}

// Len returns the number of items.
func (c *Collection) Len() int {
	return len(c.items)
}

// Item returns a copy of the item at index i.
func (c *Collection) Item(i int) (Item, bool) {
	if i < 0 || i >= len(c.items) {
		return Item{}, false
	}
	it := c.items[i]
	it.Pages = append([]string(nil), it.Pages...)
	return it, true
}

// PageCount returns the number of pages of item i, or 0 when i is out of range.
func (c *Collection) PageCount(i int) int {
	if i < 0 || i >= len(c.items) {
		return 0
	}
	return len(c.items[i].Pages)
}

// PagePath returns the file path of a page, validating both indices.
func (c *Collection) PagePath(item, page int) (string, error) {
	if item < 0 || item >= len(c.items) {
		return "", fmt.Errorf("item %d of %d: %w", item, len(c.items), ErrOutOfRange)
	}
	pages := c.items[item].Pages
	if page < 0 || page >= len(pages) {
		return "", fmt.Errorf("page %d of %d in item %d: %w", page, len(pages), item, ErrOutOfRange)
	}
	return pages[page], nil
}

// TotalPages sums the page counts of every item.
func (c *Collection) TotalPages() int {
	n := 0
	for _, it := range c.items {
		n += len(it.Pages)
	}
	return n
}
