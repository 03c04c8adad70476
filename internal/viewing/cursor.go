package viewing

import "github.com/manga-lockstep/backend/internal/catalog"

// Cursor is the shared read position. Item and Page are zero-based and always
// within the bounds of the collection the cursor was stepped against.
type Cursor struct {
	Item int `json:"item"`
	Page int `json:"page"`
}

// Step moves the cursor one page in the direction of v. Moving past either end
// of the collection leaves the cursor where it is.
func (c Cursor) Step(col *catalog.Collection, v Vote) Cursor {
	switch v {
	case VoteAdvance:
		if c.Page+1 < col.PageCount(c.Item) {
			return Cursor{Item: c.Item, Page: c.Page + 1}
		}
		if c.Item+1 < col.Len() {
			return Cursor{Item: c.Item + 1, Page: 0}
		}
	case VoteRetreat:
		if c.Page > 0 {
			return Cursor{Item: c.Item, Page: c.Page - 1}
		}
		if c.Item > 0 {
			return Cursor{Item: c.Item - 1, Page: col.PageCount(c.Item-1) - 1}
		}
	}
	return c
}

// Valid reports whether the cursor addresses an existing page of col.
func (c Cursor) Valid(col *catalog.Collection) bool {
	return c.Item >= 0 && c.Item < col.Len() && c.Page >= 0 && c.Page < col.PageCount(c.Item)
}
