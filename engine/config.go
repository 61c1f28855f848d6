package engine

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/augment/mount"
	"github.com/hazyhaar/augment/settings"
)

// Feed modes.
const (
	FeedMutation = "mutation" // injected MutationObserver
	FeedPoll     = "poll"     // location polling
)

// Config is the top-level engine configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	Target   TargetConfig   `yaml:"target"`
	Debounce DebounceConfig `yaml:"debounce"`
	Feed     FeedConfig     `yaml:"feed"`
	Service  ServiceConfig  `yaml:"service"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Status   StatusConfig   `yaml:"status"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Mode             string   `yaml:"mode"` // headless | headful
	ResourceBlocking []string `yaml:"resource_blocking"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
	Width            int      `yaml:"width"`
	Height           int      `yaml:"height"`
}

// PageConfig is one host page to augment.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// TargetConfig mirrors mount.Target in YAML form.
type TargetConfig struct {
	HostSelector            string `yaml:"host_selector"`
	MarkerID                string `yaml:"marker_id"`
	InsertionAnchorSelector string `yaml:"insertion_anchor_selector"`
	StyleID                 string `yaml:"style_id"`
	PathPattern             string `yaml:"path_pattern"`
	MaxItems                int    `yaml:"max_items"`
}

// DebounceConfig controls navigation quiescence.
type DebounceConfig struct {
	Window time.Duration `yaml:"window"`
}

// FeedConfig selects how mutation notifications are produced.
type FeedConfig struct {
	Mode         string        `yaml:"mode"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ServiceConfig locates the similar-items service.
type ServiceConfig struct {
	// SettingsDB is the host settings store. Empty means FallbackURL only.
	SettingsDB   string        `yaml:"settings_db"`
	SettingsKey  string        `yaml:"settings_key"`
	FallbackURL  string        `yaml:"fallback_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
	UserAgent    string        `yaml:"user_agent"`
}

// SinkConfig defines an output backend for visit events.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// StatusConfig enables the status API when Addr is set.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("engine: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration for a single page with every default set.
func Default(pageURL string) *Config {
	cfg := &Config{Pages: []PageConfig{{URL: pageURL}}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Width <= 0 {
		c.Browser.Width = 1280
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = 900
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}

	t := &c.Target
	if t.HostSelector == "" {
		t.HostSelector = mount.DefaultHostSelector
	}
	if t.MarkerID == "" {
		t.MarkerID = mount.DefaultMarkerID
	}
	if t.InsertionAnchorSelector == "" {
		t.InsertionAnchorSelector = mount.DefaultAnchorSelector
	}
	if t.StyleID == "" {
		t.StyleID = mount.DefaultStyleID
	}
	if t.PathPattern == "" {
		t.PathPattern = mount.DefaultPathPattern.String()
	}
	if t.MaxItems <= 0 {
		t.MaxItems = mount.DefaultMaxItems
	}

	if c.Debounce.Window <= 0 {
		c.Debounce.Window = time.Second
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = FeedMutation
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = 500 * time.Millisecond
	}

	s := &c.Service
	if s.SettingsKey == "" {
		s.SettingsKey = settings.APIURLKey
	}
	if s.FallbackURL == "" {
		s.FallbackURL = settings.FallbackAPIURL
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.Debounce <= 0 {
		s.Debounce = 250 * time.Millisecond
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Pages) == 0 {
		errs = append(errs, errors.New("engine: no pages configured"))
	}
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("engine: page %s has no url", p.ID))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("engine: duplicate page id %s", p.ID))
		}
		seen[p.ID] = true
	}
	switch c.Feed.Mode {
	case FeedMutation, FeedPoll:
	default:
		errs = append(errs, fmt.Errorf("engine: unknown feed mode %q", c.Feed.Mode))
	}
	if _, err := regexp.Compile(c.Target.PathPattern); err != nil {
		errs = append(errs, fmt.Errorf("engine: path_pattern: %w", err))
	}
	if err := settings.ValidateBaseURL(c.Service.FallbackURL); err != nil {
		errs = append(errs, fmt.Errorf("engine: fallback_url: %w", err))
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, errors.New("engine: webhook sink has no url"))
			}
		default:
			errs = append(errs, fmt.Errorf("engine: unknown sink type %q", s.Type))
		}
	}
	return errors.Join(errs...)
}

// MountTarget builds the mount.Target described by the config.
func (c *Config) MountTarget() (mount.Target, error) {
	re, err := regexp.Compile(c.Target.PathPattern)
	if err != nil {
		return mount.Target{}, fmt.Errorf("engine: path_pattern: %w", err)
	}
	return mount.Target{
		HostSelector:            c.Target.HostSelector,
		MarkerID:                c.Target.MarkerID,
		InsertionAnchorSelector: c.Target.InsertionAnchorSelector,
		StyleID:                 c.Target.StyleID,
		PathPattern:             re,
		MaxItems:                c.Target.MaxItems,
	}, nil
}
