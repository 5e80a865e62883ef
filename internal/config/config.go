package config

import (
	"bytes"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 3000
	defaultEnv        = "development"
	defaultTimezone   = "America/Toronto"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "tracker"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379

	defaultWindowMinutes = 10
	defaultGeoEndpoint   = "http://ip-api.com"
	defaultGeoTimeoutSec = 5

	// Reference origin for the map dataset: all visit arcs start here.
	defaultOriginLat = 45.5017
	defaultOriginLon = -73.5673
)

// Suppression policies for the notification gate.
const (
	PolicyIdentityAware = "identity_aware"
	PolicyIPOnly        = "ip_only"
)

// AppConfig holds runtime configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	Timezone       string         `yaml:"timezone"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	Auth           AuthConfig     `yaml:"auth"`
	Tracker        TrackerConfig  `yaml:"tracker"`
	GeoIP          GeoIPConfig    `yaml:"geoip"`
	Mail           MailConfig     `yaml:"mail"`
	Map            MapConfig      `yaml:"map"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
	Loc      string `yaml:"loc"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	// Secret is the shared bearer secret every beacon request must present.
	Secret string `yaml:"secret"`
}

type TrackerConfig struct {
	// WindowMinutes is the trailing suppression window W.
	WindowMinutes int `yaml:"window_minutes"`
	// SuppressionPolicy is "identity_aware" or "ip_only".
	SuppressionPolicy string `yaml:"suppression_policy"`
	// RetentionDays deletes visit rows older than N days when > 0.
	// 0 keeps history forever, which the map aggregation relies on.
	RetentionDays int `yaml:"retention_days"`
}

type GeoIPConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type MailConfig struct {
	Enable    bool   `yaml:"enable"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	ReplyTo   string `yaml:"reply_to"`
	UseResend bool   `yaml:"use_resend"`
	ResendKey string `yaml:"resend_key"`
}

type MapConfig struct {
	OriginLat       float64 `yaml:"origin_lat"`
	OriginLon       float64 `yaml:"origin_lon"`
	GoogleAPIKey    string  `yaml:"google_api_key"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

type rawAppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"`
	NodeEnv        string         `yaml:"node_env"`
	Timezone       string         `yaml:"timezone"`
	TZ             string         `yaml:"tz"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	Auth           AuthConfig     `yaml:"auth"`
	Authorization  string         `yaml:"authorization"` // legacy flat key from the .env era
	Tracker        TrackerConfig  `yaml:"tracker"`
	GeoIP          GeoIPConfig    `yaml:"geoip"`
	Mail           MailConfig     `yaml:"mail"`
	Map            MapConfig      `yaml:"map"`
}

// Load reads and validates the YAML config at path.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret is required in %q", path)
	}
	if cfg.Tracker.SuppressionPolicy != PolicyIdentityAware && cfg.Tracker.SuppressionPolicy != PolicyIPOnly {
		return nil, fmt.Errorf("invalid tracker.suppression_policy %q in %q, expected %q or %q",
			cfg.Tracker.SuppressionPolicy, path, PolicyIdentityAware, PolicyIPOnly)
	}
	if cfg.Tracker.WindowMinutes < 1 {
		return nil, fmt.Errorf("invalid tracker.window_minutes %d in %q, expected >= 1", cfg.Tracker.WindowMinutes, path)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		Timezone: defaultTimezone,
		Database: DatabaseConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
			Loc:      defaultDBLoc,
		},
		Redis: RedisConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
		},
		Tracker: TrackerConfig{
			WindowMinutes:     defaultWindowMinutes,
			SuppressionPolicy: PolicyIdentityAware,
		},
		GeoIP: GeoIPConfig{
			Endpoint:       defaultGeoEndpoint,
			TimeoutSeconds: defaultGeoTimeoutSec,
		},
		Mail: MailConfig{
			Port: 587,
		},
		Map: MapConfig{
			OriginLat: defaultOriginLat,
			OriginLon: defaultOriginLon,
		},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}

	applyDatabase(&cfg.Database, raw.Database)
	applyRedis(&cfg.Redis, raw.Redis)

	if v := strings.TrimSpace(raw.Auth.Secret); v != "" {
		cfg.Auth.Secret = v
	}
	if v := strings.TrimSpace(raw.Authorization); v != "" && cfg.Auth.Secret == "" {
		cfg.Auth.Secret = v
	}

	if raw.Tracker.WindowMinutes != 0 {
		cfg.Tracker.WindowMinutes = raw.Tracker.WindowMinutes
	}
	if v := strings.ToLower(strings.TrimSpace(raw.Tracker.SuppressionPolicy)); v != "" {
		cfg.Tracker.SuppressionPolicy = v
	}
	if raw.Tracker.RetentionDays > 0 {
		cfg.Tracker.RetentionDays = raw.Tracker.RetentionDays
	}

	if v := strings.TrimRight(strings.TrimSpace(raw.GeoIP.Endpoint), "/"); v != "" {
		cfg.GeoIP.Endpoint = v
	}
	if raw.GeoIP.TimeoutSeconds > 0 {
		cfg.GeoIP.TimeoutSeconds = raw.GeoIP.TimeoutSeconds
	}

	applyMail(&cfg.Mail, raw.Mail)

	if raw.Map.OriginLat != 0 {
		cfg.Map.OriginLat = raw.Map.OriginLat
	}
	if raw.Map.OriginLon != 0 {
		cfg.Map.OriginLon = raw.Map.OriginLon
	}
	if v := strings.TrimSpace(raw.Map.GoogleAPIKey); v != "" {
		cfg.Map.GoogleAPIKey = v
	}
	if raw.Map.CacheTTLSeconds > 0 {
		cfg.Map.CacheTTLSeconds = raw.Map.CacheTTLSeconds
	}

	cfg.Env = normalizeEnv(cfg.Env)
}

func applyDatabase(cfg *DatabaseConfig, raw DatabaseConfig) {
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Charset); v != "" {
		cfg.Charset = v
	}
	if v := strings.TrimSpace(raw.Loc); v != "" {
		cfg.Loc = v
	}
}

func applyRedis(cfg *RedisConfig, raw RedisConfig) {
	if v := strings.TrimSpace(raw.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if raw.DB != 0 {
		cfg.DB = raw.DB
	}
}

func applyMail(cfg *MailConfig, raw MailConfig) {
	cfg.Enable = raw.Enable
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if raw.Pass != "" {
		cfg.Pass = raw.Pass
	}
	if v := strings.TrimSpace(raw.From); v != "" {
		cfg.From = v
	}
	if v := strings.TrimSpace(raw.To); v != "" {
		cfg.To = v
	}
	if v := strings.TrimSpace(raw.ReplyTo); v != "" {
		cfg.ReplyTo = v
	}
	cfg.UseResend = raw.UseResend
	if v := strings.TrimSpace(raw.ResendKey); v != "" {
		cfg.ResendKey = v
	}
}

// DSNValue builds the MySQL DSN from the discrete fields unless an explicit
// dsn was configured.
func (c DatabaseConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	params := neturl.Values{}
	params.Set("charset", c.Charset)
	params.Set("parseTime", "true")
	params.Set("loc", c.Loc)

	auth := c.User
	if c.Password != "" {
		auth += ":" + c.Password
	}

	return fmt.Sprintf("%s@tcp(%s)/%s?%s",
		auth, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Name, params.Encode())
}

// URLValue builds the redis URL unless an explicit url was configured.
func (c RedisConfig) URLValue() string {
	if v := strings.TrimSpace(c.URL); v != "" {
		if strings.HasPrefix(v, "redis://") || strings.HasPrefix(v, "rediss://") {
			return v
		}
		return "redis://" + v
	}

	u := &neturl.URL{
		Scheme: "redis",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + strconv.Itoa(c.DB),
	}
	if c.Password != "" {
		u.User = neturl.UserPassword("", c.Password)
	}
	return u.String()
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// Window returns the duplicate-suppression window as a duration.
func (c TrackerConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// Timeout returns the geolocation client timeout as a duration.
func (c GeoIPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns the map dataset cache TTL; zero disables caching.
func (c MapConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
