package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"

	"github.com/GisSunTech/mini-shop-full/internal/models"
)

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.GetAllOrders()
	if err != nil {
		http.Error(w, "Error fetching orders", http.StatusInternalServerError)
		return
	}

	tmpl := h.Templates.Get("admin_orders.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	session, _ := h.SessionStore.Get(r, SessionName)
	data := map[string]interface{}{
		"Orders":    orders,
		"Statuses":  []string{models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusFulfilled},
		"CsrfField": csrf.TemplateField(r),
		"Flashes":   GetFlash(session),
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

// UpdateOrderStatus sets a new status. Membership in the four known states
// is the only rule; any status may move to any other.
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	order, err := h.Store.GetOrderByID(id)
	if err != nil {
		http.Error(w, "Error fetching order", http.StatusInternalServerError)
		return
	}
	if order == nil {
		http.NotFound(w, r)
		return
	}

	status := r.FormValue("status")
	if !models.ValidOrderStatus(status) {
		redirectWithFlash(w, r, session, "danger", "Invalid status", "/admin/orders")
		return
	}

	if err := h.Store.UpdateOrderStatus(id, status); err != nil {
		redirectWithFlash(w, r, session, "danger", "Error updating status", "/admin/orders")
		return
	}
	redirectWithFlash(w, r, session, "success", "Order status updated", "/admin/orders")
}
