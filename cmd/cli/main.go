// Admin provisioning tool. Kept outside the request path: run it once to
// seed the bootstrap administrator from ADMIN_EMAIL / ADMIN_PASSWORD.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/GisSunTech/mini-shop-full/internal/config"
	"github.com/GisSunTech/mini-shop-full/internal/handlers"
	"github.com/GisSunTech/mini-shop-full/internal/store"
)

func main() {
	addAdminCmd := flag.NewFlagSet("add-admin", flag.ExitOnError)
	email := addAdminCmd.String("email", "", "Admin email (defaults to ADMIN_EMAIL)")
	password := addAdminCmd.String("password", "", "Admin password (defaults to ADMIN_PASSWORD)")

	if len(os.Args) < 2 {
		fmt.Println("expected 'add-admin' subcommand")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add-admin":
		addAdminCmd.Parse(os.Args[2:])
		createAdmin(*email, *password)
	default:
		fmt.Println("expected 'add-admin' subcommand")
		os.Exit(1)
	}
}

func createAdmin(email, password string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if email == "" {
		email = cfg.AdminEmail
	}
	if password == "" {
		password = cfg.AdminPassword
	}
	email = handlers.NormalizeEmail(email)

	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	// Ensure tables exist if running cli before server
	if err := db.InitSchema(); err != nil {
		log.Fatalf("Failed to init schema: %v", err)
	}

	// Idempotent: an existing admin is left alone.
	existing, err := db.GetUserByEmail(email)
	if err != nil {
		log.Fatalf("Failed to check for existing admin: %v", err)
	}
	if existing != nil {
		fmt.Printf("Admin user %s already exists.\n", email)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	if _, err := db.CreateUser(email, string(hashedPassword), true); err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}

	fmt.Printf("Admin user %s created successfully.\n", email)
}
