package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"

	"github.com/GisSunTech/mini-shop-full/internal/models"
	"github.com/GisSunTech/mini-shop-full/internal/store"
	"github.com/GisSunTech/mini-shop-full/internal/upload"
)

type AdminHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
	Uploads      *upload.Saver
	AllowedVideo map[string]bool
	AllowedFile  map[string]bool
	MaxUpload    int64
}

// Dashboard shows all items plus the counters the admin cares about.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetDashboardStats()
	if err != nil {
		http.Error(w, "Error fetching stats", http.StatusInternalServerError)
		return
	}
	items, err := h.Store.SearchItems("")
	if err != nil {
		http.Error(w, "Error fetching items", http.StatusInternalServerError)
		return
	}

	tmpl := h.Templates.Get("admin_items.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session, _ := h.SessionStore.Get(r, SessionName)
	data := map[string]interface{}{
		"Items":     items,
		"Stats":     stats,
		"Flashes":   GetFlash(session),
		"CsrfField": csrf.TemplateField(r),
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

// ListItems reuses the dashboard view; the admin item list IS the landing page.
func (h *AdminHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	h.Dashboard(w, r)
}

func (h *AdminHandler) NewItemForm(w http.ResponseWriter, r *http.Request) {
	tmpl := h.Templates.Get("admin_item_form.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session, _ := h.SessionStore.Get(r, SessionName)
	data := map[string]interface{}{
		"CsrfField": csrf.TemplateField(r),
		"Flashes":   GetFlash(session),
		"Item":      nil,
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

func (h *AdminHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	if err := r.ParseMultipartForm(h.MaxUpload); err != nil {
		redirectWithFlash(w, r, session, "danger", "Upload too large.", "/admin/items/new")
		return
	}

	title := r.FormValue("title")
	priceStr := r.FormValue("price")
	description := r.FormValue("description")

	if title == "" {
		redirectWithFlash(w, r, session, "danger", "Title is required", "/admin/items/new")
		return
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		redirectWithFlash(w, r, session, "danger", "Invalid price format", "/admin/items/new")
		return
	}

	// Either upload failing aborts the whole creation; no partial item.
	videoName, err := h.saveOptionalUpload(r, "video", h.AllowedVideo)
	if err != nil {
		h.flashUploadError(w, r, session, err, "Invalid video format", "/admin/items/new")
		return
	}
	fileName, err := h.saveOptionalUpload(r, "file", h.AllowedFile)
	if err != nil {
		h.flashUploadError(w, r, session, err, "Invalid file format", "/admin/items/new")
		return
	}

	item := &models.Item{
		Title:         title,
		Price:         price,
		Description:   description,
		VideoFilename: videoName,
		FileFilename:  fileName,
	}
	if err := h.Store.CreateItem(item); err != nil {
		slog.Error("Item creation failed", "error", err)
		redirectWithFlash(w, r, session, "danger", "Error saving item to database.", "/admin/items/new")
		return
	}

	redirectWithFlash(w, r, session, "success", "Item created", "/admin/items")
}

func (h *AdminHandler) EditItemForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	item, err := h.Store.GetItemByID(id)
	if err != nil {
		http.Error(w, "Error fetching item", http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.NotFound(w, r)
		return
	}

	tmpl := h.Templates.Get("admin_item_form.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session, _ := h.SessionStore.Get(r, SessionName)
	data := map[string]interface{}{
		"CsrfField": csrf.TemplateField(r),
		"Flashes":   GetFlash(session),
		"Item":      item,
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

// UpdateItem overwrites the scalar fields and only replaces an attachment
// when a new file was actually submitted and passed the allow-list. A
// rejected upload aborts the entire edit, scalar changes included.
func (h *AdminHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	editURL := "/admin/items/" + strconv.Itoa(id) + "/edit"

	item, err := h.Store.GetItemByID(id)
	if err != nil {
		http.Error(w, "Error fetching item", http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseMultipartForm(h.MaxUpload); err != nil {
		redirectWithFlash(w, r, session, "danger", "Upload too large.", editURL)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		redirectWithFlash(w, r, session, "danger", "Title is required", editURL)
		return
	}
	price, err := decimal.NewFromString(r.FormValue("price"))
	if err != nil {
		redirectWithFlash(w, r, session, "danger", "Invalid price format", editURL)
		return
	}

	videoName, err := h.saveOptionalUpload(r, "video", h.AllowedVideo)
	if err != nil {
		h.flashUploadError(w, r, session, err, "Invalid video format", editURL)
		return
	}
	fileName, err := h.saveOptionalUpload(r, "file", h.AllowedFile)
	if err != nil {
		h.flashUploadError(w, r, session, err, "Invalid file format", editURL)
		return
	}

	item.Title = title
	item.Price = price
	item.Description = r.FormValue("description")
	if videoName != "" {
		item.VideoFilename = videoName
	}
	if fileName != "" {
		item.FileFilename = fileName
	}

	if err := h.Store.UpdateItem(item); err != nil {
		slog.Error("Item update failed", "error", err, "item_id", id)
		redirectWithFlash(w, r, session, "danger", "Error updating item.", editURL)
		return
	}

	redirectWithFlash(w, r, session, "success", "Item updated", "/admin/items")
}

func (h *AdminHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		redirectWithFlash(w, r, session, "danger", "Invalid ID.", "/admin/items")
		return
	}
	item, err := h.Store.GetItemByID(id)
	if err != nil {
		redirectWithFlash(w, r, session, "danger", "Error fetching item.", "/admin/items")
		return
	}
	if item == nil {
		http.NotFound(w, r)
		return
	}

	if err := h.Store.DeleteItem(id); err != nil {
		slog.Error("Item deletion failed", "error", err, "item_id", id)
		redirectWithFlash(w, r, session, "danger", "Error deleting item.", "/admin/items")
		return
	}
	redirectWithFlash(w, r, session, "info", "Item deleted", "/admin/items")
}

// saveOptionalUpload stores the named form file if one was submitted.
// Returns ("", nil) when the field is absent or has an empty filename, and
// upload.ErrInvalidFormat when the extension fails the allow-list.
func (h *AdminHandler) saveOptionalUpload(r *http.Request, field string, exts map[string]bool) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()
	if header.Filename == "" {
		return "", nil
	}
	return h.Uploads.Save(file, header.Filename, exts)
}

func (h *AdminHandler) flashUploadError(w http.ResponseWriter, r *http.Request, session *sessions.Session, err error, invalidMsg, dest string) {
	if errors.Is(err, upload.ErrInvalidFormat) {
		redirectWithFlash(w, r, session, "danger", invalidMsg, dest)
		return
	}
	slog.Error("Upload failed", "error", err)
	redirectWithFlash(w, r, session, "danger", "Error saving upload.", dest)
}
