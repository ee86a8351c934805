// Package config loads and validates the scraper configuration.
//
// The configuration is a JSON file. Defaults are applied for unset fields
// and a handful of secrets can be overridden through environment variables,
// so tokens never have to live in the file. Validation happens at load
// time: a configuration that passed Load is safe to hand to the pipeline.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Pattern-matching fields accepted in FilterConfig.PatternFields.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldLocation    = "location"
)

// Config is the root configuration object consumed by the pipeline.
type Config struct {
	Filter        FilterConfig        `json:"filter"`
	Notifications NotificationsConfig `json:"notifications"`
	Searches      []SearchConfig      `json:"searches"`
	DataStore     DataStoreConfig     `json:"data_store"`
	Scraper       ScraperConfig       `json:"scraper"`
}

// UnmarshalJSON seeds the defaults that must hold even when a whole
// section is absent from the file. Field unmarshalers only run for keys
// that are present, so an omitted filter section would otherwise leave
// ExcludeTopAds at the zero value instead of true.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	aux := alias{Filter: FilterConfig{ExcludeTopAds: true}}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Config(aux)
	return nil
}

// SearchConfig is one named query against the site.
//
// Name doubles as the data store partition key, so it must be unique
// across all configured searches.
type SearchConfig struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Recursive bool   `json:"recursive"`
}

// UnmarshalJSON defaults Recursive to true when the key is absent.
func (s *SearchConfig) UnmarshalJSON(data []byte) error {
	type alias SearchConfig
	aux := alias{Recursive: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = SearchConfig(aux)
	return nil
}

// FilterConfig holds the client-side exclusion rules.
type FilterConfig struct {
	ExcludeTopAds   bool     `json:"exclude_topads"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	// PatternFields selects which ad fields the exclude patterns are
	// matched against. Empty means title and description.
	PatternFields []string `json:"pattern_fields,omitempty"`
}

// UnmarshalJSON defaults ExcludeTopAds to true when the key is absent.
func (f *FilterConfig) UnmarshalJSON(data []byte) error {
	type alias FilterConfig
	aux := alias{ExcludeTopAds: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = FilterConfig(aux)
	return nil
}

// CompilePatterns compiles the exclude patterns case-insensitively.
// Matching is unanchored, substring style.
func (f *FilterConfig) CompilePatterns() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(f.ExcludePatterns))
	for _, p := range f.ExcludePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: exclude pattern %q: %v", ErrInvalid, p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// Fields returns the fields patterns are matched against.
func (f *FilterConfig) Fields() []string {
	if len(f.PatternFields) == 0 {
		return []string{FieldTitle, FieldDescription}
	}
	return f.PatternFields
}

// NotificationsConfig maps service names to their settings. Each entry is
// independently optional; a nil entry means the channel is inactive.
type NotificationsConfig struct {
	Pushover *PushoverConfig `json:"pushover,omitempty"`
	Ntfy     *NtfyConfig     `json:"ntfy.sh,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
}

// PushoverConfig configures the Pushover notification service.
// An empty Device list sends to all devices of the user.
type PushoverConfig struct {
	Token  string   `json:"token"`
	User   string   `json:"user"`
	Device []string `json:"device,omitempty"`
}

// NtfyConfig configures the ntfy.sh notification service.
type NtfyConfig struct {
	Topic    string `json:"topic"`
	Priority int    `json:"priority,omitempty"`
	Server   string `json:"server,omitempty"`
}

// EmailConfig configures SMTP notifications.
type EmailConfig struct {
	SMTPHost string   `json:"smtp_host"`
	SMTPPort int      `json:"smtp_port"`
	SMTPUser string   `json:"smtp_user"`
	SMTPPass string   `json:"smtp_pass"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// DataStoreConfig selects and configures the data store backend.
type DataStoreConfig struct {
	// Type is "file" or "redis".
	Type          string `json:"type,omitempty"`
	Path          string `json:"path,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
}

// ScraperConfig tunes page fetching.
type ScraperConfig struct {
	// MaxPages bounds pagination per search, guarding against next-page
	// cycles on the remote side.
	MaxPages       int           `json:"max_pages,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
	// RateLimit is the request rate in pages per second shared by all
	// searches of a run. Zero disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty"`
	UserAgent string  `json:"user_agent,omitempty"`
}

// UnmarshalJSON accepts the request timeout as a duration string.
func (s *ScraperConfig) UnmarshalJSON(data []byte) error {
	type alias ScraperConfig
	aux := &struct {
		RequestTimeout string `json:"request_timeout,omitempty"`
		*alias
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.RequestTimeout != "" {
		d, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout: %w", err)
		}
		s.RequestTimeout = d
	}
	return nil
}

// MarshalJSON writes the request timeout as a duration string.
func (s ScraperConfig) MarshalJSON() ([]byte, error) {
	type alias ScraperConfig
	aux := struct {
		alias
		RequestTimeout string `json:"request_timeout,omitempty"`
	}{alias: alias(s)}
	if s.RequestTimeout > 0 {
		aux.RequestTimeout = s.RequestTimeout.String()
	}
	return json.Marshal(aux)
}

// Default returns the template configuration emitted by create-config.
func Default() *Config {
	cfg := &Config{
		Filter: FilterConfig{ExcludeTopAds: true},
		Searches: []SearchConfig{
			{
				Name:      "Wohnungen in Hamburg Altona",
				URL:       "https://www.kleinanzeigen.de/s-wohnung-mieten/altona/c203l9497",
				Recursive: true,
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads, defaults, env-overrides and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataStore.Type == "" {
		cfg.DataStore.Type = "file"
	}
	if cfg.Scraper.MaxPages == 0 {
		cfg.Scraper.MaxPages = 50
	}
	if cfg.Scraper.RequestTimeout == 0 {
		cfg.Scraper.RequestTimeout = 30 * time.Second
	}
	if cfg.Scraper.RateLimit == 0 {
		cfg.Scraper.RateLimit = 2
	}
	if cfg.Scraper.RateBurst == 0 {
		cfg.Scraper.RateBurst = 4
	}
	if cfg.Notifications.Ntfy != nil {
		if cfg.Notifications.Ntfy.Priority == 0 {
			cfg.Notifications.Ntfy.Priority = 3
		}
		if cfg.Notifications.Ntfy.Server == "" {
			cfg.Notifications.Ntfy.Server = "https://ntfy.sh"
		}
	}
	if cfg.Notifications.Email != nil && cfg.Notifications.Email.SMTPPort == 0 {
		cfg.Notifications.Email.SMTPPort = 587
	}
}

// applyEnvOverrides lets secrets and host settings come from the
// environment instead of the config file.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()
	_ = v.BindEnv("pushover_token", "PUSHOVER_TOKEN")
	_ = v.BindEnv("pushover_user", "PUSHOVER_USER")
	_ = v.BindEnv("ntfy_topic", "NTFY_TOPIC")
	_ = v.BindEnv("ntfy_server", "NTFY_SERVER")
	_ = v.BindEnv("smtp_pass", "SMTP_PASS")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("data_store_path", "EK_SCRAPER_DATA_STORE")

	if cfg.Notifications.Pushover != nil {
		if s := v.GetString("pushover_token"); s != "" {
			cfg.Notifications.Pushover.Token = s
		}
		if s := v.GetString("pushover_user"); s != "" {
			cfg.Notifications.Pushover.User = s
		}
	}
	if cfg.Notifications.Ntfy != nil {
		if s := v.GetString("ntfy_topic"); s != "" {
			cfg.Notifications.Ntfy.Topic = s
		}
		if s := v.GetString("ntfy_server"); s != "" {
			cfg.Notifications.Ntfy.Server = s
		}
	}
	if cfg.Notifications.Email != nil {
		if s := v.GetString("smtp_pass"); s != "" {
			cfg.Notifications.Email.SMTPPass = s
		}
	}
	if s := v.GetString("redis_addr"); s != "" {
		cfg.DataStore.RedisAddr = s
	}
	if s := v.GetString("redis_password"); s != "" {
		cfg.DataStore.RedisPassword = s
	}
	if s := v.GetString("data_store_path"); s != "" {
		cfg.DataStore.Path = s
	}
}

// Validate rejects configurations the pipeline must never see. Every
// returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Searches))
	for i, s := range c.Searches {
		if s.Name == "" {
			return fmt.Errorf("%w: searches[%d]: name must not be empty", ErrInvalid, i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("%w: duplicate search name %q, names partition the data store and must be unique", ErrInvalid, s.Name)
		}
		names[s.Name] = struct{}{}

		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: search %q: invalid url %q", ErrInvalid, s.Name, s.URL)
		}
	}

	if _, err := c.Filter.CompilePatterns(); err != nil {
		return err
	}
	for _, f := range c.Filter.PatternFields {
		switch f {
		case FieldTitle, FieldDescription, FieldLocation:
		default:
			return fmt.Errorf("%w: filter.pattern_fields: unknown field %q", ErrInvalid, f)
		}
	}

	if p := c.Notifications.Pushover; p != nil {
		if p.Token == "" || p.User == "" {
			return fmt.Errorf("%w: notifications.pushover: token and user are required", ErrInvalid)
		}
	}
	if n := c.Notifications.Ntfy; n != nil {
		if n.Topic == "" {
			return fmt.Errorf("%w: notifications.ntfy.sh: topic is required", ErrInvalid)
		}
		if n.Priority < 1 || n.Priority > 5 {
			return fmt.Errorf("%w: notifications.ntfy.sh: priority must be 1..5, got %d", ErrInvalid, n.Priority)
		}
	}
	if e := c.Notifications.Email; e != nil {
		if e.SMTPHost == "" || e.From == "" || len(e.To) == 0 {
			return fmt.Errorf("%w: notifications.email: smtp_host, from and to are required", ErrInvalid)
		}
	}

	switch c.DataStore.Type {
	case "file":
	case "redis":
		if c.DataStore.RedisAddr == "" {
			return fmt.Errorf("%w: data_store: redis_addr is required for type redis", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: data_store: unknown type %q", ErrInvalid, c.DataStore.Type)
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("%w: scraper.max_pages must be positive, got %d", ErrInvalid, c.Scraper.MaxPages)
	}
	return nil
}
