package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/matthewsawatzky/minidrive/internal/theme"
)

const (
	AdminSourceAllData    = "all-data"
	AdminSourceAllFiles   = "all-files"
	AdminSourceFilesAdmin = "files-admin"
)

// MaxUploadLimitMB caps max_upload_size_mb at 64 GiB.
const MaxUploadLimitMB = 64 << 10

const (
	RegisterPath = "/api/auth/register"
	SignupPath   = "/api/auth/signup"
)

type Config struct {
	APIBaseURL        string          `json:"api_base_url" yaml:"api_base_url"`
	RegisterPath      string          `json:"register_path" yaml:"register_path"`
	AdminSource       string          `json:"admin_source" yaml:"admin_source"`
	RequestTimeout    string          `json:"request_timeout" yaml:"request_timeout"`
	Bind              string          `json:"bind" yaml:"bind"`
	Host              string          `json:"host" yaml:"host"`
	Port              int             `json:"port" yaml:"port"`
	BasePath          string          `json:"base_path" yaml:"base_path"`
	LogLevel          string          `json:"log_level" yaml:"log_level"`
	DataDir           string          `json:"data_dir" yaml:"data_dir"`
	HTTPS             bool            `json:"https" yaml:"https"`
	CertFile          string          `json:"cert_file" yaml:"cert_file"`
	KeyFile           string          `json:"key_file" yaml:"key_file"`
	Theme             string          `json:"theme" yaml:"theme"`
	ThemeOverrides    theme.Overrides `json:"theme_overrides" yaml:"theme_overrides"`
	SessionTTL        string          `json:"session_ttl" yaml:"session_ttl"`
	RevalidateSession bool            `json:"revalidate_session" yaml:"revalidate_session"`
	MaxUploadSizeMB   int64           `json:"max_upload_size_mb" yaml:"max_upload_size_mb"`
}

func DefaultPaths() (configPath, dataDir string, err error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("resolve user config dir: %w", err)
	}
	var dataRoot string
	switch runtime.GOOS {
	case "windows":
		dataRoot = cfgRoot
	default:
		if p, derr := os.UserHomeDir(); derr == nil {
			dataRoot = filepath.Join(p, ".local", "share")
		} else {
			dataRoot = cfgRoot
		}
	}
	configPath = filepath.Join(cfgRoot, "minidrive", "config.json")
	dataDir = filepath.Join(dataRoot, "minidrive")
	return configPath, dataDir, nil
}

func Default(dataDir string) Config {
	return Config{
		APIBaseURL:        "http://localhost:5000",
		RegisterPath:      RegisterPath,
		AdminSource:       AdminSourceAllData,
		RequestTimeout:    "30s",
		Bind:              "127.0.0.1",
		Host:              "",
		Port:              5173,
		BasePath:          "/",
		LogLevel:          "info",
		DataDir:           dataDir,
		HTTPS:             false,
		CertFile:          "",
		KeyFile:           "",
		Theme:             "light",
		SessionTTL:        "12h",
		RevalidateSession: false,
		MaxUploadSizeMB:   512,
	}
}

// NormalizeBasePath reduces user input (a bare segment, a path, or a full
// URL) to a rooted path without trailing slash, query or fragment.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
		}
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = path.Clean("/" + p)
	if p == "." || p == "" {
		return "/"
	}
	return p
}

// NormalizeAPIBaseURL trims whitespace and trailing slashes so request paths
// can be appended directly.
func NormalizeAPIBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func LoadOrDefault(configPath, dataDirOverride string) (Config, error) {
	_, defaultData, err := DefaultPaths()
	if err != nil {
		return Config{}, err
	}
	cfg := Default(defaultData)
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}

	b, err := os.ReadFile(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		applyEnv(&cfg)
		return cfg, nil
	}
	if err := decode(configPath, b, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	applyEnv(&cfg)
	cfg.BasePath = NormalizeBasePath(cfg.BasePath)
	cfg.APIBaseURL = NormalizeAPIBaseURL(cfg.APIBaseURL)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MINIDRIVE_API_URL")); v != "" {
		cfg.APIBaseURL = NormalizeAPIBaseURL(v)
	}
}

func isYAML(configPath string) bool {
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decode(configPath string, b []byte, cfg *Config) error {
	if isYAML(configPath) {
		return yaml.Unmarshal(b, cfg)
	}
	return json.Unmarshal(b, cfg)
}

func Save(configPath string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	cfg.BasePath = NormalizeBasePath(cfg.BasePath)
	cfg.APIBaseURL = NormalizeAPIBaseURL(cfg.APIBaseURL)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var (
		buf []byte
		err error
	)
	if isYAML(configPath) {
		buf, err = yaml.Marshal(cfg)
	} else {
		buf, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(configPath, buf, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func Validate(cfg Config) error {
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", cfg.APIBaseURL)
	}
	switch cfg.RegisterPath {
	case RegisterPath, SignupPath:
	default:
		return fmt.Errorf("invalid register path %q", cfg.RegisterPath)
	}
	switch cfg.AdminSource {
	case AdminSourceAllData, AdminSourceAllFiles, AdminSourceFilesAdmin:
	default:
		return fmt.Errorf("invalid admin source %q", cfg.AdminSource)
	}
	if d, err := time.ParseDuration(cfg.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid request timeout %q", cfg.RequestTimeout)
	}
	if d, err := time.ParseDuration(cfg.SessionTTL); err != nil || d <= 0 {
		return fmt.Errorf("invalid session ttl %q", cfg.SessionTTL)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if cfg.MaxUploadSizeMB > MaxUploadLimitMB {
		return fmt.Errorf("max upload size %d MB exceeds %d MB", cfg.MaxUploadSizeMB, MaxUploadLimitMB)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if _, err := theme.Resolve(cfg.Theme, cfg.ThemeOverrides); err != nil {
		return err
	}
	if cfg.HTTPS && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return fmt.Errorf("https enabled but cert/key missing")
	}
	return nil
}

// Durations returns the parsed request timeout and session TTL. Callers are
// expected to have run Validate.
func (c Config) Durations() (requestTimeout, sessionTTL time.Duration) {
	requestTimeout, _ = time.ParseDuration(c.RequestTimeout)
	sessionTTL, _ = time.ParseDuration(c.SessionTTL)
	return requestTimeout, sessionTTL
}

func ConfigPathFromEnv() (string, error) {
	if p := strings.TrimSpace(os.Getenv("MINIDRIVE_CONFIG")); p != "" {
		return p, nil
	}
	cfgPath, _, err := DefaultPaths()
	return cfgPath, err
}
