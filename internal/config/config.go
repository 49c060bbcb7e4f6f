// Package config provides configuration management for the shelfdrop CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
)

// Config is the full client configuration: server connection, proxy
// settings, and the upload restrictions handed to strategy constructors.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\shelfdrop\config
//   - Unix: ~/.config/shelfdrop/config
//
// INI format:
//
//	[shelfdrop]
//	server_url = https://drop.example.com
//	turbo = false
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy =
//
//	[upload]
//	max_file_size_mb = 0
//	allowed_extensions =
//	chunk_size_mb = 5
//	max_concurrent_files = 5
type Config struct {
	// Server connection
	ServerURL string `ini:"server_url"`

	// Turbo opts in to the direct multipart strategy when the server's
	// storage backend supports presigned part uploads.
	Turbo bool `ini:"turbo"`

	// Proxy settings
	ProxyMode     string `ini:"mode"` // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string `ini:"host"`
	ProxyPort     int    `ini:"port"`
	ProxyUser     string `ini:"user"`
	ProxyPassword string `ini:"-"` // never persisted; prompt or env only
	NoProxy       string `ini:"no_proxy"`

	// Upload restrictions
	Restrictions Restrictions
}

// Restrictions is the typed restriction set passed at strategy construction.
// A strategy instance never reads global state; FallbackController rebuilds
// the replacement strategy from the same value.
type Restrictions struct {
	// MaxFileSizeBytes rejects larger files at queue-add time. 0 = unlimited.
	MaxFileSizeBytes int64

	// AllowedExtensions, when non-empty, is the lowercase set of permitted
	// extensions including the dot (".pdf"). Empty = all types allowed.
	AllowedExtensions map[string]struct{}

	// ChunkSizeBytes is the fixed chunk size for the resumable strategy and
	// the part size for the multipart strategy.
	ChunkSizeBytes int64

	// RetryDelays is the ordered retry schedule for chunk/part uploads.
	RetryDelays []time.Duration

	// MaxConcurrentFiles caps simultaneous file transfers.
	MaxConcurrentFiles int
}

// DefaultRestrictions returns the restriction set used when the config file
// does not override anything.
func DefaultRestrictions() Restrictions {
	return Restrictions{
		MaxFileSizeBytes:   0,
		AllowedExtensions:  nil,
		ChunkSizeBytes:     constants.ChunkSize,
		RetryDelays:        append([]time.Duration(nil), constants.RetryDelays...),
		MaxConcurrentFiles: constants.MaxConcurrentFiles,
	}
}

// Allows reports whether a file with the given name and size passes the
// restriction set. The returned error is user-facing and produced before
// any network call.
func (r Restrictions) Allows(name string, sizeBytes int64) error {
	if r.MaxFileSizeBytes > 0 && sizeBytes > r.MaxFileSizeBytes {
		return fmt.Errorf("file %q exceeds the maximum size of %d bytes", name, r.MaxFileSizeBytes)
	}
	if len(r.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := r.AllowedExtensions[ext]; !ok {
			return fmt.Errorf("file type %q is not allowed", ext)
		}
	}
	return nil
}

// Validation errors
var (
	ErrMissingServerURL = errors.New("server_url is required")
	ErrBadProxyMode     = errors.New("proxy mode must be one of: no-proxy, system, basic, ntlm")
)

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrBadProxyMode
	}
	if c.Restrictions.ChunkSizeBytes < constants.MinPartSize {
		return fmt.Errorf("chunk size %d is below the storage minimum of %d", c.Restrictions.ChunkSizeBytes, constants.MinPartSize)
	}
	if c.Restrictions.MaxConcurrentFiles < 1 {
		return fmt.Errorf("max_concurrent_files must be at least 1")
	}
	return nil
}

// DefaultPath returns the per-user config file path.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "shelfdrop", "config"), nil
}

// Load reads the config file at path. A missing file yields defaults, not
// an error, so a bare `shelfdrop upload --server ...` works out of the box.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ProxyMode:    "no-proxy",
		Restrictions: DefaultRestrictions(),
	}

	f, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if err := f.Section("shelfdrop").MapTo(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse [shelfdrop] section: %w", err)
	}
	if err := f.Section("proxy").MapTo(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse [proxy] section: %w", err)
	}

	up := f.Section("upload")
	if up.HasKey("max_file_size_mb") {
		mb := up.Key("max_file_size_mb").MustInt64(0)
		cfg.Restrictions.MaxFileSizeBytes = mb * 1024 * 1024
	}
	if up.HasKey("chunk_size_mb") {
		mb := up.Key("chunk_size_mb").MustInt64(constants.ChunkSize / (1024 * 1024))
		cfg.Restrictions.ChunkSizeBytes = mb * 1024 * 1024
	}
	if up.HasKey("max_concurrent_files") {
		cfg.Restrictions.MaxConcurrentFiles = up.Key("max_concurrent_files").MustInt(constants.MaxConcurrentFiles)
	}
	if up.HasKey("allowed_extensions") {
		cfg.Restrictions.AllowedExtensions = ParseExtensions(up.Key("allowed_extensions").String())
	}

	return cfg, nil
}

// Save writes the config file, creating parent directories as needed.
// The proxy password is deliberately never written.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f := ini.Empty()
	sec := f.Section("shelfdrop")
	sec.Key("server_url").SetValue(cfg.ServerURL)
	sec.Key("turbo").SetValue(fmt.Sprintf("%t", cfg.Turbo))

	p := f.Section("proxy")
	p.Key("mode").SetValue(cfg.ProxyMode)
	p.Key("host").SetValue(cfg.ProxyHost)
	p.Key("port").SetValue(fmt.Sprintf("%d", cfg.ProxyPort))
	p.Key("user").SetValue(cfg.ProxyUser)
	p.Key("no_proxy").SetValue(cfg.NoProxy)

	up := f.Section("upload")
	up.Key("max_file_size_mb").SetValue(fmt.Sprintf("%d", cfg.Restrictions.MaxFileSizeBytes/(1024*1024)))
	up.Key("chunk_size_mb").SetValue(fmt.Sprintf("%d", cfg.Restrictions.ChunkSizeBytes/(1024*1024)))
	up.Key("max_concurrent_files").SetValue(fmt.Sprintf("%d", cfg.Restrictions.MaxConcurrentFiles))
	up.Key("allowed_extensions").SetValue(FormatExtensions(cfg.Restrictions.AllowedExtensions))

	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config %s: %w", path, err)
	}
	return nil
}

// ParseExtensions converts "pdf, .JPG,png" into {".pdf", ".jpg", ".png"}.
func ParseExtensions(s string) map[string]struct{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	out := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FormatExtensions is the inverse of ParseExtensions, with stable output.
func FormatExtensions(exts map[string]struct{}) string {
	if len(exts) == 0 {
		return ""
	}
	list := make([]string, 0, len(exts))
	for ext := range exts {
		list = append(list, ext)
	}
	// Sorted for deterministic config files
	sort.Strings(list)
	return strings.Join(list, ",")
}
