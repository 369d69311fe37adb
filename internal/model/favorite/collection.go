package favorite

import "github.com/zhouzirui/z-favorites/backend/internal/model/user"

// Collection is the ordered set of favorited users. Order is the time of
// favoriting; no two entries share an id.
type Collection struct {
	items []user.User
}

// NewCollection builds a collection from items, keeping the first occurrence of
// each id.
func NewCollection(items []user.User) *Collection {
	c := &Collection{items: make([]user.User, 0, len(items))}
	for _, item := range items {
		c.Add(item)
	}
	return c
}

// Add appends u unless an entry with the same id exists. Reports whether the
// collection changed.
func (c *Collection) Add(u user.User) bool {
	if c.Contains(u.ID) {
		return false
	}
	u.IsFavorite = true
	c.items = append(c.items, u)
	return true
}

// Remove drops the entry with id. Reports whether the collection changed.
func (c *Collection) Remove(id int) bool {
	for i, item := range c.items {
		if item.ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether an entry with id is present.
func (c *Collection) Contains(id int) bool {
	_, ok := c.FindByID(id)
	return ok
}

// FindByID looks up a favorite by identifier.
func (c *Collection) FindByID(id int) (user.User, bool) {
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	return user.User{}, false
}

// Items returns a copy of the entries in favoriting order.
func (c *Collection) Items() []user.User {
	return append([]user.User{}, c.items...)
}

// Len returns the number of favorites.
func (c *Collection) Len() int {
	return len(c.items)
}
