package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/GisSunTech/mini-shop-full/internal/cart"
	"github.com/GisSunTech/mini-shop-full/internal/models"
	"github.com/GisSunTech/mini-shop-full/internal/store"
	"github.com/GisSunTech/mini-shop-full/internal/upload"
)

var testVideoExts = map[string]bool{"mp4": true}
var testFileExts = map[string]bool{"pdf": true, "txt": true}

type testEnv struct {
	store    *store.Store
	sessions *sessions.CookieStore
	tmpl     *TemplateCache
	auth     *AuthHandler
	shop     *ShopHandler
	admin    *AdminHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.DB.Close() })
	require.NoError(t, db.InitSchema())

	sessionStore := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))

	tmpl := NewTemplateCache()
	dir := t.TempDir()
	for _, name := range []string{"home.html", "login.html", "register.html", "cart.html", "admin_items.html", "admin_item_form.html", "admin_orders.html"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{{range .Flashes}}{{.Message}}\n{{end}}"), 0o644))
	}
	require.NoError(t, tmpl.Load(dir))

	env := &testEnv{store: db, sessions: sessionStore, tmpl: tmpl}
	env.auth = &AuthHandler{Store: db, SessionStore: sessionStore, Templates: tmpl}
	env.shop = &ShopHandler{Store: db, SessionStore: sessionStore, Templates: tmpl}
	env.admin = &AdminHandler{
		Store:        db,
		SessionStore: sessionStore,
		Templates:    tmpl,
		Uploads:      &upload.Saver{Dir: t.TempDir()},
		AllowedVideo: testVideoExts,
		AllowedFile:  testFileExts,
		MaxUpload:    10 << 20,
	}
	return env
}

// formRequest builds a urlencoded POST, optionally pre-loading session
// values via setup.
func (e *testEnv) formRequest(t *testing.T, target string, form url.Values, setup func(*sessions.Session)) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	e.attachSession(t, r, setup)
	return r
}

func (e *testEnv) attachSession(t *testing.T, r *http.Request, setup func(*sessions.Session)) {
	t.Helper()
	if setup == nil {
		return
	}
	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := e.sessions.Get(seed, SessionName)
	require.NoError(t, err)
	setup(session)
	require.NoError(t, session.Save(seed, rec))
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
}

// sessionFromResponse decodes the session the handler wrote back.
func (e *testEnv) sessionFromResponse(t *testing.T, rec *httptest.ResponseRecorder) *sessions.Session {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	session, err := e.sessions.Get(r, SessionName)
	require.NoError(t, err)
	return session
}

func loggedIn(userID int, isAdmin bool) func(*sessions.Session) {
	return func(s *sessions.Session) {
		s.Values["authenticated"] = true
		s.Values["user_id"] = userID
		s.Values["is_admin"] = isAdmin
	}
}

func seedUser(t *testing.T, db *store.Store, email, password string, isAdmin bool) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := db.CreateUser(email, string(hash), isAdmin)
	require.NoError(t, err)
	return id
}

func seedItem(t *testing.T, db *store.Store, title, price string) *models.Item {
	t.Helper()
	item := &models.Item{Title: title}
	var err error
	item.Price, err = decimal.NewFromString(price)
	require.NoError(t, err)
	require.NoError(t, db.CreateItem(item))
	return item
}

func countRows(t *testing.T, db *store.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRegisterNormalizesEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/register", url.Values{
		"email":    {"  Alice@Example.COM  "},
		"password": {"secret"},
	}, nil)
	env.auth.RegisterPost(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	user, err := env.store.GetUserByEmail("alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user, "email is stored trimmed and lower-cased")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.store, "alice@example.com", "secret", false)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/register", url.Values{
		"email":    {" ALICE@example.com "},
		"password": {"other"},
	}, nil)
	env.auth.RegisterPost(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get("Location"))
	assert.Equal(t, 1, countRows(t, env.store, "users"), "case/whitespace variants are the same email")
}

func TestRegisterInsertFailureNotReportedAsDuplicate(t *testing.T) {
	env := newTestEnv(t)

	// Make the insert fail for a reason other than the email UNIQUE
	// constraint; reads still work, so the duplicate pre-check passes.
	_, err := env.store.DB.Exec(`CREATE TRIGGER block_user_inserts BEFORE INSERT ON users
		BEGIN SELECT RAISE(ABORT, 'insert blocked'); END`)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/register", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret"},
	}, nil)
	env.auth.RegisterPost(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get("Location"))

	flashes := GetFlash(env.sessionFromResponse(t, rec))
	require.Len(t, flashes, 1)
	assert.Equal(t, "Registration failed", flashes[0].Message)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.store, "alice@example.com", "secret", false)

	tests := []struct {
		name  string
		email string
		pass  string
	}{
		{"wrong password", "alice@example.com", "nope"},
		{"unknown user", "nobody@example.com", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := env.formRequest(t, "/login", url.Values{"email": {tt.email}, "password": {tt.pass}}, nil)
			env.auth.LoginPost(rec, r)

			// Both failure modes look identical to the client.
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/login", rec.Header().Get("Location"))
		})
	}
}

func TestLoginSuccessHonorsSafeNext(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.store, "alice@example.com", "secret", false)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/login", url.Values{
		"email":    {"Alice@example.com"},
		"password": {"secret"},
		"next":     {"/cart"},
	}, nil)
	env.auth.LoginPost(rec, r)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	r = env.formRequest(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret"},
		"next":     {"https://evil.example.com/"},
	}, nil)
	env.auth.LoginPost(rec, r)
	assert.Equal(t, "/", rec.Header().Get("Location"), "absolute next destinations are ignored")
}

func TestRequireAdminBlocksNonAdmins(t *testing.T) {
	env := newTestEnv(t)
	userID := seedUser(t, env.store, "shopper@example.com", "secret", false)
	item := seedItem(t, env.store, "Widget", "9.99")

	guarded := env.auth.RequireAdmin(env.admin.DeleteItem)

	tests := []struct {
		name  string
		setup func(*sessions.Session)
	}{
		{"anonymous", nil},
		{"authenticated non-admin", loggedIn(userID, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := env.formRequest(t, "/admin/items/1/delete", url.Values{}, tt.setup)
			r.SetPathValue("id", "1")
			guarded(rec, r)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/login", rec.Header().Get("Location"))

			still, err := env.store.GetItemByID(item.ID)
			require.NoError(t, err)
			assert.NotNil(t, still, "no state is mutated on a denied request")
		})
	}
}

func TestAddToCart(t *testing.T) {
	env := newTestEnv(t)
	item := seedItem(t, env.store, "Widget", "9.99")

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/add-to-cart/1", url.Values{"qty": {"2"}}, func(s *sessions.Session) {})
	r.SetPathValue("id", strconv.Itoa(item.ID))
	env.shop.AddToCart(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	c := cart.FromSession(env.sessionFromResponse(t, rec))
	assert.Equal(t, 2, c[strconv.Itoa(item.ID)])
}

func TestAddToCartUnknownItem(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/add-to-cart/999", url.Values{}, func(s *sessions.Session) {})
	r.SetPathValue("id", "999")
	env.shop.AddToCart(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	c := cart.FromSession(env.sessionFromResponse(t, rec))
	assert.Empty(t, c, "unknown items never enter the cart")
}

func TestCheckoutCreatesOrderAndClearsCart(t *testing.T) {
	env := newTestEnv(t)
	userID := seedUser(t, env.store, "buyer@example.com", "secret", false)
	item := seedItem(t, env.store, "Widget", "9.99")

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/checkout", url.Values{}, func(s *sessions.Session) {
		loggedIn(userID, false)(s)
		// One live entry, one entry whose item was deleted meanwhile.
		cart.Cart{"1": 2, "999": 1}.Store(s)
	})
	env.shop.Checkout(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	orders, err := env.store.GetAllOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusPending, orders[0].Status)
	require.Len(t, orders[0].Lines, 1, "stale entries contribute no line")
	assert.Equal(t, item.ID, orders[0].Lines[0].ItemID)
	assert.Equal(t, 2, orders[0].Lines[0].Quantity)
	assert.True(t, item.Price.Equal(orders[0].Lines[0].PriceEach))

	c := cart.FromSession(env.sessionFromResponse(t, rec))
	assert.Empty(t, c, "checkout clears the whole cart, stale entries included")
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	userID := seedUser(t, env.store, "buyer@example.com", "secret", false)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/checkout", url.Values{}, loggedIn(userID, false))
	env.shop.Checkout(rec, r)

	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	assert.Zero(t, countRows(t, env.store, "orders"))
}

func TestCheckoutAllEntriesStale(t *testing.T) {
	env := newTestEnv(t)
	userID := seedUser(t, env.store, "buyer@example.com", "secret", false)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/checkout", url.Values{}, func(s *sessions.Session) {
		loggedIn(userID, false)(s)
		cart.Cart{"404": 3}.Store(s)
	})
	env.shop.Checkout(rec, r)

	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	assert.Zero(t, countRows(t, env.store, "orders"), "nothing resolvable means no order")
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	userID := seedUser(t, env.store, "buyer@example.com", "secret", false)
	item := seedItem(t, env.store, "Widget", "9.99")
	orderID, err := env.store.CreateOrder(userID, []models.OrderItem{
		{ItemID: item.ID, Quantity: 1, PriceEach: item.Price},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/admin/orders/1/status", url.Values{"status": {"shipped"}}, loggedIn(1, true))
	r.SetPathValue("id", "1")
	env.admin.UpdateOrderStatus(rec, r)

	assert.Equal(t, "/admin/orders", rec.Header().Get("Location"))
	order, err := env.store.GetOrderByID(orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status, "unknown status leaves the order unchanged")
}

func TestUpdateOrderStatusAllowsAnyTransition(t *testing.T) {
	env := newTestEnv(t)
	userID := seedUser(t, env.store, "buyer@example.com", "secret", false)
	item := seedItem(t, env.store, "Widget", "9.99")
	orderID, err := env.store.CreateOrder(userID, []models.OrderItem{
		{ItemID: item.ID, Quantity: 1, PriceEach: item.Price},
	})
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateOrderStatus(orderID, models.StatusFulfilled))

	rec := httptest.NewRecorder()
	r := env.formRequest(t, "/admin/orders/1/status", url.Values{"status": {"pending"}}, loggedIn(1, true))
	r.SetPathValue("id", "1")
	env.admin.UpdateOrderStatus(rec, r)

	order, err := env.store.GetOrderByID(orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status, "fulfilled may move back to pending")
}

// multipartRequest builds a multipart POST. files maps field name to
// {filename, content}.
func (e *testEnv) multipartRequest(t *testing.T, target string, fields map[string]string, files map[string][2]string, setup func(*sessions.Session)) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, f := range files {
		part, err := w.CreateFormFile(field, f[0])
		require.NoError(t, err)
		_, err = part.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r := httptest.NewRequest(http.MethodPost, target, &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	e.attachSession(t, r, setup)
	return r
}

func TestCreateItemWithUploads(t *testing.T) {
	env := newTestEnv(t)

	r := env.multipartRequest(t, "/admin/items/new",
		map[string]string{"title": "Widget", "price": "9.99", "description": "A widget"},
		map[string][2]string{
			"video": {"intro.mp4", "video-bytes"},
			"file":  {"manual.pdf", "pdf-bytes"},
		}, loggedIn(1, true))
	rec := httptest.NewRecorder()
	env.admin.CreateItem(rec, r)

	assert.Equal(t, "/admin/items", rec.Header().Get("Location"))

	items, err := env.store.SearchItems("")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "intro.mp4", items[0].VideoFilename)
	assert.Equal(t, "manual.pdf", items[0].FileFilename)
	assert.FileExists(t, filepath.Join(env.admin.Uploads.Dir, "intro.mp4"))
	assert.FileExists(t, filepath.Join(env.admin.Uploads.Dir, "manual.pdf"))
}

func TestCreateItemRejectedUploadCreatesNothing(t *testing.T) {
	env := newTestEnv(t)

	r := env.multipartRequest(t, "/admin/items/new",
		map[string]string{"title": "Widget", "price": "9.99"},
		map[string][2]string{"video": {"intro.exe", "not-a-video"}},
		loggedIn(1, true))
	rec := httptest.NewRecorder()
	env.admin.CreateItem(rec, r)

	assert.Equal(t, "/admin/items/new", rec.Header().Get("Location"))
	assert.Zero(t, countRows(t, env.store, "items"), "a rejected upload aborts the whole creation")
}

func TestUpdateItemKeepsAttachmentsWhenNoFilesSubmitted(t *testing.T) {
	env := newTestEnv(t)
	item := seedItem(t, env.store, "Widget", "9.99")
	item.VideoFilename = "old.mp4"
	item.FileFilename = "old.pdf"
	require.NoError(t, env.store.UpdateItem(item))

	r := env.multipartRequest(t, "/admin/items/1/edit",
		map[string]string{"title": "Widget v2", "price": "12.50"},
		nil, loggedIn(1, true))
	r.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	env.admin.UpdateItem(rec, r)

	got, err := env.store.GetItemByID(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", got.Title)
	assert.Equal(t, "old.mp4", got.VideoFilename, "omitting a file leaves the attachment untouched")
	assert.Equal(t, "old.pdf", got.FileFilename)
}

func TestUpdateItemRejectedUploadAbortsWholeEdit(t *testing.T) {
	env := newTestEnv(t)
	item := seedItem(t, env.store, "Widget", "9.99")
	item.FileFilename = "old.pdf"
	require.NoError(t, env.store.UpdateItem(item))

	r := env.multipartRequest(t, "/admin/items/1/edit",
		map[string]string{"title": "Hacked", "price": "0.01"},
		map[string][2]string{"file": {"payload.exe", "nope"}},
		loggedIn(1, true))
	r.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	env.admin.UpdateItem(rec, r)

	got, err := env.store.GetItemByID(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Title, "scalar changes are discarded too")
	assert.True(t, item.Price.Equal(got.Price))
	assert.Equal(t, "old.pdf", got.FileFilename)
}
