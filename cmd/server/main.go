package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"github.com/GisSunTech/mini-shop-full/internal/config"
	"github.com/GisSunTech/mini-shop-full/internal/handlers"
	"github.com/GisSunTech/mini-shop-full/internal/store"
	"github.com/GisSunTech/mini-shop-full/internal/upload"
)

func main() {
	handlerOpts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	// TextHandler for console readability; for production JSONHandler might be preferred.
	logger := slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload directory", "error", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	// 2. Init DB
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}

	// Run Migrations
	if err := db.Migrate("migrations"); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// 3. Session Setup
	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.CookieSecure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"

	// 4. Init Templates
	templates := handlers.NewTemplateCache()
	if err := templates.Load("templates"); err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	// 5. Setup Handlers
	uploads := &upload.Saver{Dir: cfg.UploadDir}
	authHandler := &handlers.AuthHandler{
		Store:        db,
		SessionStore: sessionStore,
		Templates:    templates,
	}
	shopHandler := &handlers.ShopHandler{
		Store:        db,
		SessionStore: sessionStore,
		Templates:    templates,
	}
	adminHandler := &handlers.AdminHandler{
		Store:        db,
		SessionStore: sessionStore,
		Templates:    templates,
		Uploads:      uploads,
		AllowedVideo: cfg.AllowedVideo,
		AllowedFile:  cfg.AllowedFile,
		MaxUpload:    cfg.MaxUploadBytes,
	}

	mux := http.NewServeMux()

	// Static Files
	fileServer := http.FileServer(http.Dir("./static"))
	mux.Handle("/static/", http.StripPrefix("/static", fileServer))

	// Stored uploads, referenced by bare filename from item rows
	uploadServer := http.FileServer(http.Dir(cfg.UploadDir))
	mux.Handle("/uploads/", http.StripPrefix("/uploads", uploadServer))

	// Rate limiter for the credential-bearing POST routes
	rateLimiter := handlers.NewRateLimiter(time.Second)

	// Public Routes
	mux.HandleFunc("/", shopHandler.Index)
	mux.HandleFunc("/register", authHandler.RegisterForm)
	mux.HandleFunc("POST /register", rateLimiter.Middleware(authHandler.RegisterPost))
	mux.HandleFunc("/login", authHandler.LoginForm)
	mux.HandleFunc("POST /login", rateLimiter.Middleware(authHandler.LoginPost))
	mux.HandleFunc("/logout", authHandler.Logout)

	// Cart & Checkout
	mux.HandleFunc("POST /add-to-cart/{id}", shopHandler.AddToCart)
	mux.HandleFunc("/cart", shopHandler.ViewCart)
	mux.HandleFunc("POST /remove-from-cart/{id}", shopHandler.RemoveFromCart)
	mux.HandleFunc("POST /checkout", authHandler.RequireLogin(shopHandler.Checkout))

	// Admin Routes
	mux.HandleFunc("/admin", authHandler.RequireAdmin(adminHandler.Dashboard))
	mux.HandleFunc("/admin/items", authHandler.RequireAdmin(adminHandler.ListItems))
	mux.HandleFunc("/admin/items/new", authHandler.RequireAdmin(adminHandler.NewItemForm))
	mux.HandleFunc("POST /admin/items/new", authHandler.RequireAdmin(adminHandler.CreateItem))
	mux.HandleFunc("/admin/items/{id}/edit", authHandler.RequireAdmin(adminHandler.EditItemForm))
	mux.HandleFunc("POST /admin/items/{id}/edit", authHandler.RequireAdmin(adminHandler.UpdateItem))
	mux.HandleFunc("POST /admin/items/{id}/delete", authHandler.RequireAdmin(adminHandler.DeleteItem))
	mux.HandleFunc("/admin/orders", authHandler.RequireAdmin(adminHandler.ListOrders))
	mux.HandleFunc("POST /admin/orders/{id}/status", authHandler.RequireAdmin(adminHandler.UpdateOrderStatus))

	// 6. Middleware Setup
	CSRF := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port, "localhost", "127.0.0.1"}),
	)

	// Chain: Logger -> Security Headers -> CSRF -> Mux
	handler := handlers.LoggingMiddleware(
		handlers.SecurityHeadersMiddleware(
			CSRF(mux),
		),
	)

	// 7. Start Server with Graceful Shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	<-stop

	slog.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully.")
}
