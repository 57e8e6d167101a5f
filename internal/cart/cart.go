// Package cart holds the session-scoped shopping cart: a mapping from item
// id (as a decimal string) to a desired quantity. Nothing here is persisted;
// checkout converts the cart into order rows.
package cart

import (
	"encoding/gob"
	"sort"
	"strconv"

	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"

	"github.com/GisSunTech/mini-shop-full/internal/models"
)

const sessionKey = "cart"

// Cart is registered for gob encoding so gorilla/sessions can round-trip it.
type Cart map[string]int

func init() {
	gob.Register(Cart{})
}

// FromSession returns the cart stored in the session, or an empty one.
func FromSession(session *sessions.Session) Cart {
	if c, ok := session.Values[sessionKey].(Cart); ok {
		return c
	}
	return Cart{}
}

// Store writes the cart back into the session values. The caller still has
// to save the session.
func (c Cart) Store(session *sessions.Session) {
	session.Values[sessionKey] = c
}

// Clear drops every entry, including ones whose item no longer exists.
func Clear(session *sessions.Session) {
	session.Values[sessionKey] = Cart{}
}

// Add increments the quantity for itemID by qty, inserting if absent.
func (c Cart) Add(itemID int, qty int) {
	if qty < 1 {
		qty = 1
	}
	key := strconv.Itoa(itemID)
	c[key] = c[key] + qty
}

// Remove deletes the entry if present; removing an absent id is a no-op.
func (c Cart) Remove(itemID int) {
	delete(c, strconv.Itoa(itemID))
}

// ItemIDs returns the parseable keys in ascending order.
func (c Cart) ItemIDs() []int {
	ids := make([]int, 0, len(c))
	for key := range c {
		if id, err := strconv.Atoi(key); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Line is one resolved cart row.
type Line struct {
	Item      models.Item
	Quantity  int
	LineTotal decimal.Decimal
}

// Lines resolves the cart against the given items and computes decimal-exact
// line totals plus the grand total. Cart entries with no matching item are
// skipped: they keep their slot in the cart but contribute no line.
func (c Cart) Lines(items []models.Item) ([]Line, decimal.Decimal) {
	var lines []Line
	total := decimal.Zero
	for _, it := range items {
		qty := c[strconv.Itoa(it.ID)]
		if qty < 1 {
			continue
		}
		lineTotal := it.Price.Mul(decimal.NewFromInt(int64(qty)))
		total = total.Add(lineTotal)
		lines = append(lines, Line{Item: it, Quantity: qty, LineTotal: lineTotal})
	}
	return lines, total
}
