package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env tidak ditemukan, pakai env system")
	}
}

func GetEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return n
}

func GetEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func GetEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return d
}

/*
|--------------------------------------------------------------------------
| App Config
|--------------------------------------------------------------------------
*/
type App struct {
	Host string
	Port string

	LogLevel  string
	LogFormat string

	Timezone      string
	QueueOpen     string // jam buka pendaftaran online, kosong = tanpa batas
	QueueClose    string
	IntakeDefault bool

	PersistSnapshots bool
	SnapshotTTL      time.Duration
	AuditMySQL       bool
	NatsURL          string

	SubscriberBuffer int
	JanitorInterval  time.Duration
	JanitorRetention time.Duration
	DisplayUser      string
	DisplayPassHash  string
	AllowOrigins     string
}

func Load() App {
	return App{
		Host: GetEnv("APP_HOST", "0.0.0.0"),
		Port: GetEnv("APP_PORT", "8080"),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		Timezone:      GetEnv("QUEUE_TZ", "Asia/Jakarta"),
		QueueOpen:     GetEnv("QUEUE_OPEN", ""),
		QueueClose:    GetEnv("QUEUE_CLOSE", ""),
		IntakeDefault: GetEnvBool("QUEUE_INTAKE_DEFAULT", true),

		PersistSnapshots: GetEnvBool("QUEUE_PERSIST", true),
		SnapshotTTL:      GetEnvDuration("QUEUE_SNAPSHOT_TTL", 72*time.Hour),
		AuditMySQL:       GetEnvBool("AUDIT_MYSQL", true),
		NatsURL:          GetEnv("NATS_URL", ""),

		SubscriberBuffer: GetEnvInt("WS_BUFFER", 64),
		JanitorInterval:  GetEnvDuration("JANITOR_INTERVAL", time.Minute),
		JanitorRetention: GetEnvDuration("JANITOR_RETENTION", 48*time.Hour),
		DisplayUser:      GetEnv("DISPLAY_USER", "display"),
		DisplayPassHash:  GetEnv("DISPLAY_PASS_HASH", ""),
		AllowOrigins:     GetEnv("CORS_ORIGINS", "*"),
	}
}

func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("timezone %q tidak dikenal, pakai UTC", a.Timezone)
		return time.UTC
	}
	return loc
}
