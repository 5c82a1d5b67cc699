package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション設定を表す
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	AMQP     AMQPConfig
	Booking  BookingConfig
	Policy   PolicyConfig
	Auth     AuthConfig
}

// AppConfig は実行環境の設定
type AppConfig struct {
	Env      string
	LogLevel string // 空なら環境ごとの既定値
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Driver         string // postgres | memory
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration // 起動時に接続を待つ上限
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        string
	Password    string
	DB          int
	PoolSize    int           // 0 ならライブラリ既定
	DialTimeout time.Duration // 起動時の疎通確認にも使う
}

// CacheConfig はキャッシュ設定
type CacheConfig struct {
	Backend           string // redis | memcached | local
	TTL               time.Duration
	MemcachedServers  []string
	LocalMaxSize      int64
	InvalidateTimeout time.Duration
	MarkTTL           time.Duration
}

// AMQPConfig はドメインイベント送信先の設定（URL未設定ならログ出力のみ）
type AMQPConfig struct {
	URL        string
	Exchange   string
	BufferSize int
}

// BookingConfig は予約ルールと排他制御の設定
type BookingConfig struct {
	MinStayNights   int
	MaxStayNights   int
	MinLeadTime     time.Duration
	MaxGuests       int
	TimeZone        string
	PendingExpiry   time.Duration
	SweepInterval   time.Duration
	LockTTL         time.Duration
	LockRetries     int
	LockRetryDelay  time.Duration
	LockWaitTimeout time.Duration
}

// TierSpec はキャンセルポリシーの1段階（チェックイン何時間前までなら何%返金か）
type TierSpec struct {
	HoursBeforeCheckIn int
	RefundPercent      int
}

// PolicyConfig はキャンセルポリシー設定
type PolicyConfig struct {
	Tiers         []TierSpec
	ProcessingFee string
	CurrencyScale int
}

// Credentials は Basic 認証の資格情報
type Credentials struct {
	User     string
	Password string
}

// Enabled はユーザーとパスワードの両方が設定されているかを返す
func (c Credentials) Enabled() bool {
	return c.User != "" && c.Password != ""
}

// AuthConfig は運用向けエンドポイントの認証設定
type AuthConfig struct {
	Metrics Credentials // /metrics
	Admin   Credentials // 在庫登録・販売停止
}

const defaultCancellationTiers = "168:100,72:50,24:20"

// Load は環境変数から設定を読み込む
func Load() *Config {
	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", ""),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DB_DRIVER", "postgres"),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "hotel_reservation"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "migrations"),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnectTimeout:  getDurationEnv("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Enabled:     getBoolEnv("REDIS_ENABLED", true),
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getIntEnv("REDIS_DB", 0),
			PoolSize:    getIntEnv("REDIS_POOL_SIZE", 0),
			DialTimeout: getDurationEnv("REDIS_DIAL_TIMEOUT", 2*time.Second),
		},
		Cache: CacheConfig{
			Backend:           getEnv("CACHE_BACKEND", "redis"),
			TTL:               getDurationEnv("CACHE_TTL", 5*time.Minute),
			MemcachedServers:  getListEnv("MEMCACHED_SERVERS", []string{"localhost:11211"}),
			LocalMaxSize:      int64(getIntEnv("CACHE_LOCAL_MAX_SIZE", 10000)),
			InvalidateTimeout: getDurationEnv("CACHE_INVALIDATE_TIMEOUT", 200*time.Millisecond),
			MarkTTL:           getDurationEnv("CACHE_MARK_TTL", 30*time.Second),
		},
		AMQP: AMQPConfig{
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "hotel.reservations"),
			BufferSize: getIntEnv("EVENT_BUFFER_SIZE", 256),
		},
		Booking: BookingConfig{
			MinStayNights:   getIntEnv("BOOKING_MIN_STAY_NIGHTS", 1),
			MaxStayNights:   getIntEnv("BOOKING_MAX_STAY_NIGHTS", 30),
			MinLeadTime:     getDurationEnv("BOOKING_MIN_LEAD_TIME", 0),
			MaxGuests:       getIntEnv("BOOKING_MAX_GUESTS", 4),
			TimeZone:        getEnv("HOTEL_TIMEZONE", "UTC"),
			PendingExpiry:   getDurationEnv("BOOKING_PENDING_EXPIRY", 30*time.Minute),
			SweepInterval:   getDurationEnv("BOOKING_SWEEP_INTERVAL", time.Minute),
			LockTTL:         getDurationEnv("ROOM_LOCK_TTL", 10*time.Second),
			LockRetries:     getIntEnv("ROOM_LOCK_RETRIES", 5),
			LockRetryDelay:  getDurationEnv("ROOM_LOCK_RETRY_DELAY", 50*time.Millisecond),
			LockWaitTimeout: getDurationEnv("ROOM_LOCK_WAIT_TIMEOUT", 2*time.Second),
		},
		Policy: PolicyConfig{
			ProcessingFee: getEnv("CANCELLATION_PROCESSING_FEE", "0"),
			CurrencyScale: getIntEnv("CURRENCY_SCALE", 0),
		},
		Auth: AuthConfig{
			Metrics: Credentials{User: os.Getenv("METRICS_USER"), Password: os.Getenv("METRICS_PASSWORD")},
			Admin:   Credentials{User: os.Getenv("ADMIN_USER"), Password: os.Getenv("ADMIN_PASSWORD")},
		},
	}

	tiers, err := ParseTiers(getEnv("CANCELLATION_TIERS", defaultCancellationTiers))
	if err != nil {
		tiers, _ = ParseTiers(defaultCancellationTiers)
	}
	cfg.Policy.Tiers = tiers

	// PaaS形式の接続URLが指定されていれば個別設定より優先する
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		applyRedisURL(&cfg.Redis, raw)
	}

	return cfg
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Location はホテルのタイムゾーンを返す（不正な値はUTC）
func (c *BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseTiers は "168:100,72:50,24:20" 形式のキャンセルポリシーを解析する
func ParseTiers(raw string) ([]TierSpec, error) {
	var tiers []TierSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hours, percent, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("キャンセルポリシーの形式が不正です: %q", part)
		}
		h, err := strconv.Atoi(strings.TrimSpace(hours))
		if err != nil {
			return nil, fmt.Errorf("時間の形式が不正です: %q", part)
		}
		p, err := strconv.Atoi(strings.TrimSpace(percent))
		if err != nil {
			return nil, fmt.Errorf("返金率の形式が不正です: %q", part)
		}
		tiers = append(tiers, TierSpec{HoursBeforeCheckIn: h, RefundPercent: p})
	}
	return tiers, nil
}

func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.DBName = name
	}
	c.SSLMode = "require"
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
}

func applyRedisURL(c *RedisConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
