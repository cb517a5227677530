package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "storefront"
	defaultRedisAddr     = "localhost:6379"
	defaultJWTSecret     = "change-me-in-production"
	defaultAppPort       = "8080"
	defaultAppEnv        = "local"
	defaultQueueDriver   = "memory"
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles("config/app.json", ".env")
	})
	return loadErr
}

func defaultValues() map[string]string {
	return map[string]string{
		"MONGO_URI":      defaultMongoURI,
		"MONGO_DATABASE": defaultMongoDatabase,
		"REDIS_ADDR":     defaultRedisAddr,
		"REDIS_PASSWORD": "",
		"JWT_SECRET":     defaultJWTSecret,
		"APP_PORT":       defaultAppPort,
		"APP_ENV":        defaultAppEnv,
		"QUEUE_DRIVER":   defaultQueueDriver,
	}
}

func AppPort() string {
	_ = Load()
	return get("APP_PORT", defaultAppPort)
}

func AppEnv() string {
	_ = Load()
	return get("APP_ENV", defaultAppEnv)
}

// GRPCPort is the health-check listener port. Empty disables it.
func GRPCPort() string {
	_ = Load()
	return get("GRPC_PORT", "")
}

func JWTSecret() string {
	_ = Load()
	return get("JWT_SECRET", defaultJWTSecret)
}

// ── Persistence ──────────────────────────────────────────────────────────────

func MongoURI() string {
	_ = Load()
	return get("MONGO_URI", defaultMongoURI)
}

func MongoDatabase() string {
	_ = Load()
	return get("MONGO_DATABASE", defaultMongoDatabase)
}

// LogToMongo mirrors WARN and above into the logs collection.
func LogToMongo() bool { return Bool("LOG_MONGO", false) }

func RedisAddr() string {
	_ = Load()
	return get("REDIS_ADDR", defaultRedisAddr)
}

func RedisPassword() string {
	_ = Load()
	return get("REDIS_PASSWORD", "")
}

// ── Queue ────────────────────────────────────────────────────────────────────

func QueueDriver() string {
	_ = Load()
	switch d := strings.ToLower(get("QUEUE_DRIVER", defaultQueueDriver)); d {
	case "memory", "redis":
		return d
	default:
		return defaultQueueDriver
	}
}

func QueueWorkers() int { return Int("QUEUE_WORKERS", 2) }

// ── Checkout ─────────────────────────────────────────────────────────────────

func ShippingFreeThreshold() float64 { return Float("SHIPPING_FREE_THRESHOLD", 5000) }
func ShippingFlatFee() float64       { return Float("SHIPPING_FLAT_FEE", 150) }
func TaxRate() float64               { return Float("TAX_RATE", 0.05) }

func IdempotencyTTL() time.Duration { return Duration("IDEMPOTENCY_TTL", 24*time.Hour) }

func RateLimitPerMinute() int { return Int("RATE_LIMIT_PER_MINUTE", 200) }

const defaultMaxBodyBytes = 4 << 20

// MaxBodyBytes caps every request body the API reads.
func MaxBodyBytes() int64 {
	n := int64(Int("MAX_BODY_BYTES", defaultMaxBodyBytes))
	if n <= 0 {
		return defaultMaxBodyBytes
	}
	return n
}

// ── Mail / notifications ─────────────────────────────────────────────────────

func SlackWebhookURL() string { _ = Load(); return get("SLACK_WEBHOOK_URL", "") }

// MailHost empty means mail is logged instead of sent.
func MailHost() string     { _ = Load(); return get("MAIL_HOST", "") }
func MailPort() string     { _ = Load(); return get("MAIL_PORT", "587") }
func MailUsername() string { _ = Load(); return get("MAIL_USERNAME", "") }
func MailPassword() string { _ = Load(); return get("MAIL_PASSWORD", "") }
func MailFrom() string     { _ = Load(); return get("MAIL_FROM", "orders@ourstore.example") }
func MailFromName() string { _ = Load(); return get("MAIL_FROM_NAME", "Our Store") }

// StoreURL is the customer-facing site, used for links in e-mails.
func StoreURL() string { _ = Load(); return get("STORE_URL", "http://localhost:3000") }

// ── Storage ──────────────────────────────────────────────────────────────────

func StorageDefault() string {
	_ = Load()
	return get("STORAGE_DISK", "local")
}

func StorageLocalRoot() string {
	_ = Load()
	return get("STORAGE_LOCAL_ROOT", "storage")
}

func StorageURL() string {
	_ = Load()
	return get("STORAGE_URL", "http://localhost:8080/storage")
}

func StorageS3Bucket() string   { _ = Load(); return get("S3_BUCKET", "") }
func StorageS3Region() string   { _ = Load(); return get("S3_REGION", "us-east-1") }
func StorageS3Key() string      { _ = Load(); return get("S3_KEY", "") }
func StorageS3Secret() string   { _ = Load(); return get("S3_SECRET", "") }
func StorageS3Endpoint() string { _ = Load(); return get("S3_ENDPOINT", "") }
func StorageS3URL() string      { _ = Load(); return get("S3_URL", "") }

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	if err := mergeDotEnv(envPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	mergeProcessEnv(loaded)

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		s, ok := val.(string)
		if !ok {
			continue
		}

		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(s)
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}

		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		out[key] = value
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

// mergeProcessEnv lets real environment variables override both files.
func mergeProcessEnv(out map[string]string) {
	for _, kv := range os.Environ() {
		idx := strings.IndexByte(kv, '=')
		if idx <= 0 {
			continue
		}
		if v := strings.TrimSpace(kv[idx+1:]); v != "" {
			out[kv[:idx]] = v
		}
	}
}

func get(key, fallback string) string {
	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}

	return fallback
}

// Get reads any config key by name with an optional fallback.
// Keys from .env and app.json are available after config.Load().
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}

// Set overrides a key at runtime. Intended for tests.
func Set(key, value string) {
	_ = Load()
	mu.Lock()
	values[key] = value
	mu.Unlock()
}

// Int reads an integer key, returning fallback when unset or malformed.
func Int(key string, fallback int) int {
	n, err := strconv.Atoi(Get(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

// Float reads a float key, returning fallback when unset or malformed.
func Float(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(Get(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

// Bool reads a boolean key ("true", "1", ...).
func Bool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(Get(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

// Duration reads a Go duration string such as "24h".
func Duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(Get(key, ""))
	if err != nil {
		return fallback
	}
	return d
}
