package config

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DBPath         string
	SessionKey     []byte
	CSRFKey        []byte
	CookieSecure   bool
	UploadDir      string
	MaxUploadBytes int64
	AllowedVideo   map[string]bool // extensions without the dot, lower-case
	AllowedFile    map[string]bool
	AdminEmail     string
	AdminPassword  string
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8585"),
		DBPath:         getEnv("DB_PATH", "./shop.db"),
		CookieSecure:   getEnv("COOKIE_SECURE", "false") == "true",
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 100<<20),
		AllowedVideo:   parseExtSet(getEnv("ALLOWED_VIDEO_EXT", "mp4,webm,ogg")),
		AllowedFile:    parseExtSet(getEnv("ALLOWED_FILE_EXT", "pdf,zip,docx,txt")),
		AdminEmail:     getEnv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", "Admin@123"),
	}

	cfg.SessionKey = loadKey("SECRET_KEY")
	cfg.CSRFKey = loadKey("CSRF_KEY")

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT environment variable. Falling back to default.", "PORT", os.Getenv("PORT"))
		cfg.Port = "8585"
	}

	return cfg, nil
}

// loadKey decodes a base64 key from the environment, generating a random
// development key when the variable is unset or too short.
func loadKey(envVar string) []byte {
	raw := os.Getenv(envVar)
	if raw == "" {
		slog.Warn("Key not set in environment. Generating a random key for development; sessions/tokens will not survive a restart. SET THIS IN PRODUCTION!", "var", envVar)
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) < 32 {
		slog.Warn("Key is invalid or too short (min 32 bytes). Generating a random key for development. SET A SECURE VALUE IN PRODUCTION!", "var", envVar)
		return generateRandomBytes(32)
	}
	return decoded
}

// parseExtSet turns a comma-separated extension list into a lower-case set.
func parseExtSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = true
		}
	}
	return set
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		slog.Warn("Invalid integer environment variable, using default", "var", key, "value", raw)
		return defaultValue
	}
	return n
}

// generateRandomBytes generates a random byte slice of specified length.
func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken; refuse to limp along
		// with a guessable key.
		panic("config: cannot read random bytes: " + err.Error())
	}
	return b
}
