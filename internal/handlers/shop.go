package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"github.com/GisSunTech/mini-shop-full/internal/cart"
	"github.com/GisSunTech/mini-shop-full/internal/models"
	"github.com/GisSunTech/mini-shop-full/internal/store"
)

type ShopHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
}

// Index lists all items newest-first, optionally filtered by the q query
// param (case-insensitive substring on the title).
func (h *ShopHandler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	items, err := h.Store.SearchItems(q)
	if err != nil {
		http.Error(w, "Error fetching items", http.StatusInternalServerError)
		return
	}

	tmpl := h.Templates.Get("home.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	session, _ := h.SessionStore.Get(r, SessionName)
	_, isAdmin, authed := currentIdentity(session)
	data := map[string]interface{}{
		"Items":     items,
		"Query":     q,
		"Flashes":   GetFlash(session),
		"CsrfField": csrf.TemplateField(r),
		"IsAuthed":  authed,
		"IsAdmin":   isAdmin,
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

// AddToCart bumps the quantity for an existing item; unknown items 404 via
// flash rather than entering the cart.
func (h *ShopHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	itemID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		redirectWithFlash(w, r, session, "danger", "Invalid item", "/")
		return
	}

	item, err := h.Store.GetItemByID(itemID)
	if err != nil {
		slog.Error("Item lookup failed", "error", err, "item_id", itemID)
		redirectWithFlash(w, r, session, "danger", "Internal Server Error", "/")
		return
	}
	if item == nil {
		redirectWithFlash(w, r, session, "danger", "Item not found", "/")
		return
	}

	qty, err := strconv.Atoi(r.FormValue("qty"))
	if err != nil || qty < 1 {
		qty = 1
	}

	c := cart.FromSession(session)
	c.Add(itemID, qty)
	c.Store(session)
	redirectWithFlash(w, r, session, "success", "Added "+item.Title+" to cart", "/")
}

func (h *ShopHandler) ViewCart(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)
	c := cart.FromSession(session)

	items, err := h.Store.GetItemsByIDs(c.ItemIDs())
	if err != nil {
		http.Error(w, "Error fetching cart items", http.StatusInternalServerError)
		return
	}
	lines, total := c.Lines(items)

	tmpl := h.Templates.Get("cart.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	_, _, authed := currentIdentity(session)
	data := map[string]interface{}{
		"Lines":     lines,
		"Total":     total,
		"Flashes":   GetFlash(session),
		"CsrfField": csrf.TemplateField(r),
		"IsAuthed":  authed,
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

func (h *ShopHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	itemID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		redirectWithFlash(w, r, session, "danger", "Invalid item", "/cart")
		return
	}

	c := cart.FromSession(session)
	c.Remove(itemID)
	c.Store(session)
	redirectWithFlash(w, r, session, "info", "Removed from cart", "/cart")
}

// Checkout is the single bridge from session state to persisted state: it
// materializes the cart into one pending order plus snapshot lines, all in
// one transaction, then clears the cart.
func (h *ShopHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)
	userID, _, ok := currentIdentity(session)
	if !ok {
		// RequireLogin already guards the route; this is the belt for a
		// stale session mid-request.
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	c := cart.FromSession(session)
	if len(c) == 0 {
		redirectWithFlash(w, r, session, "warning", "Cart is empty", "/cart")
		return
	}

	items, err := h.Store.GetItemsByIDs(c.ItemIDs())
	if err != nil {
		slog.Error("Checkout item resolution failed", "error", err)
		redirectWithFlash(w, r, session, "danger", "Internal Server Error", "/cart")
		return
	}
	if len(items) == 0 {
		redirectWithFlash(w, r, session, "warning", "No items to checkout", "/cart")
		return
	}

	var lines []models.OrderItem
	for _, it := range items {
		qty := c[strconv.Itoa(it.ID)]
		if qty < 1 {
			continue
		}
		lines = append(lines, models.OrderItem{
			ItemID:    it.ID,
			Quantity:  qty,
			PriceEach: it.Price, // snapshot; later price edits don't touch it
		})
	}

	orderID, err := h.Store.CreateOrder(userID, lines)
	if err != nil {
		slog.Error("Checkout failed", "error", err, "user_id", userID)
		redirectWithFlash(w, r, session, "danger", "Could not submit your order. Please try again.", "/cart")
		return
	}

	// Clear everything, including entries whose item no longer exists.
	cart.Clear(session)
	slog.Info("Order submitted", "order_id", orderID, "user_id", userID, "lines", len(lines))
	redirectWithFlash(w, r, session, "success", "Order submitted. Admin will review your request.", "/")
}
