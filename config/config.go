package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	JWTSecret        string
	SendGridAPIKey   string
	SendGridFrom     string
	FirebaseCredPath string
	FirebaseProject  string
	AppName          string
	AppURL           string
}

var AppConfig *Config

func Load() {
	godotenv.Load() // Load .env file if present

	AppConfig = &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		JWTSecret:        getEnv("JWT_SECRET", "chatstatus-dev-secret-change-me"),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		SendGridFrom:     getEnv("SENDGRID_FROM_EMAIL", "noreply@chatstatus.app"),
		FirebaseCredPath: getEnv("FIREBASE_CREDENTIALS", ""),
		FirebaseProject:  getEnv("FIREBASE_PROJECT_ID", ""),
		AppName:          getEnv("APP_NAME", "ChatStatus"),
		AppURL:           getEnv("APP_URL", "https://chatstatus.app"),
	}
}

// UseFirestore reports whether the service should talk to Firestore.
// Without Firebase credentials the gorm-backed local store is used instead.
func (c *Config) UseFirestore() bool {
	return c.FirebaseCredPath != "" || c.FirebaseProject != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
