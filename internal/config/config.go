// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ビジターセッションのストア種別
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Env は実行環境名（DEVELOPMENT, PRODUCTIONなど）。
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Session
	SessionSecret  string
	SessionMaxAge  int
	RememberMaxAge int

	// Visitor session store
	SessionStore      string // memory または redis
	RedisURL          string
	VisitorSessionTTL time.Duration

	// Admin
	AdminUser     string
	AdminPassword string

	// Providers
	TwitterClientID      string
	TwitterClientSecret  string
	FacebookClientID     string
	FacebookClientSecret string
	ProviderTimeout      time.Duration

	// Registration
	RegistrationAutoActivate bool

	// Templates
	GoogleAnalyticsID string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// IsDevelopment は開発環境かどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.Env == "DEVELOPMENT"
}

// source は設定値の参照元。環境変数を優先し、なければYAMLの値を返す。
type source struct {
	yaml map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.yaml[key]
}

// Load は.env、YAMLファイル、環境変数の順に設定を読み込む。
// 後に読んだものが優先される。必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意。既存の環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	env := strings.ToUpper(getEnvString("APP_ENV", "DEVELOPMENT"))
	dir := getEnvString("CONFIG_DIR", "config")

	values := map[string]string{}
	for _, name := range []string{"app.yml", "credentials.yml"} {
		if err := loadYAML(filepath.Join(dir, name), env, values); err != nil {
			return nil, err
		}
	}
	src := source{yaml: values}

	cfg := &Config{Env: env}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := src.get(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.SessionSecret = required("SESSION_SECRET")
	cfg.BaseURL = strings.TrimRight(required("BASE_URL"), "/")
	adminCredentials := required("ADMIN_CREDENTIALS")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required configuration is not set: %v", missing)
	}

	user, password, ok := strings.Cut(adminCredentials, ",")
	if !ok || user == "" || password == "" {
		return nil, errors.New("ADMIN_CREDENTIALS must be in the form user,password")
	}
	cfg.AdminUser = user
	cfg.AdminPassword = password

	// Optional fields with defaults
	cfg.SessionMaxAge = src.getInt("SESSION_MAX_AGE", 86400)
	cfg.RememberMaxAge = src.getInt("REMEMBER_MAX_AGE", 2592000)
	cfg.SessionStore = strings.ToLower(src.getString("SESSION_STORE", SessionStoreMemory))
	cfg.RedisURL = src.getString("REDIS_URL", "")
	cfg.VisitorSessionTTL = src.getDuration("VISITOR_SESSION_TTL", 24*time.Hour)
	cfg.TwitterClientID = src.getString("TWITTER_CLIENT_ID", "")
	cfg.TwitterClientSecret = src.getString("TWITTER_CLIENT_SECRET", "")
	cfg.FacebookClientID = src.getString("FACEBOOK_CLIENT_ID", "")
	cfg.FacebookClientSecret = src.getString("FACEBOOK_CLIENT_SECRET", "")
	cfg.ProviderTimeout = src.getDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.RegistrationAutoActivate = src.getBool("REGISTRATION_AUTO_ACTIVATE", true)
	cfg.GoogleAnalyticsID = src.getString("GOOGLE_ANALYTICS_ID", "")
	cfg.LogLevel = src.getString("LOG_LEVEL", "")
	cfg.ServerPort = src.getString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = src.getString("COOKIE_DOMAIN", "")

	switch cfg.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE: %q", cfg.SessionStore)
	}

	return cfg, nil
}

// loadYAML はYAMLファイルを読み込みvaluesにマージする。
// トップレベルに環境名のキーがあればそのセクションを、なければファイル全体を使う。
// ファイルが存在しない場合は何もしない。
func loadYAML(path, env string, values map[string]string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if section, ok := doc[env].(map[string]any); ok {
		doc = section
	}

	for k, v := range doc {
		switch v.(type) {
		case map[string]any, []any, nil:
			// 他環境のセクションや構造化された値は対象外
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return nil
}

func (s source) getString(key, defaultVal string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getBool(key string, defaultVal bool) bool {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
