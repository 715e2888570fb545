// Package config loads relay settings from flags, environment and an
// optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"keyword_relay/internal/rules"
)

var (
	ErrNoTenants = errors.New("no tenants configured")
	ErrBadSource = errors.New("source must be \"sheets\" or \"file\"")
)

const (
	SourceSheets = "sheets"
	SourceFile   = "file"
)

// Tenant is one LINE channel and the rule table it answers from. Tenants
// are tried in order when verifying a webhook signature.
type Tenant struct {
	Name          string `mapstructure:"name"`
	ChannelSecret string `mapstructure:"channel_secret"`
	ChannelToken  string `mapstructure:"channel_token"`
	TableID       string `mapstructure:"table_id"`
}

type Config struct {
	Addr      string `mapstructure:"addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`

	Source         string `mapstructure:"source"`
	RulesRange     string `mapstructure:"rules_range"`
	UnmatchedRange string `mapstructure:"unmatched_range"`
	RulesDir       string `mapstructure:"rules_dir"`
	WatchRules     bool   `mapstructure:"watch_rules"`

	GoogleCredentialsFile string `mapstructure:"google_credentials_file"`
	GoogleCredentialsJSON string `mapstructure:"google_credentials_json"`

	// FallbackReply is sent when nothing matches. Empty keeps the bot silent.
	FallbackReply  string `mapstructure:"fallback_reply"`
	LogMatched     bool   `mapstructure:"log_matched"`
	UnmatchedQueue int    `mapstructure:"unmatched_queue"`

	// UnicodeFolding applies NFKC and space folding to keywords and text
	// before matching. Off, matching only lower-cases.
	UnicodeFolding bool `mapstructure:"unicode_folding"`

	LINEEndpoint string `mapstructure:"line_endpoint"`
	// AdminToken protects /admin routes when set.
	AdminToken string `mapstructure:"admin_token"`

	Tenants []Tenant `mapstructure:"tenants"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8050")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("cache_ttl", 60*time.Second)
	v.SetDefault("fetch_timeout", 10*time.Second)
	v.SetDefault("reply_timeout", 10*time.Second)
	v.SetDefault("source", SourceSheets)
	v.SetDefault("rules_range", "Rules!A:D")
	v.SetDefault("unmatched_range", "Unmatched!A:D")
	v.SetDefault("rules_dir", "rules")
	v.SetDefault("watch_rules", true)
	v.SetDefault("fallback_reply", "")
	v.SetDefault("log_matched", false)
	v.SetDefault("unicode_folding", false)
	v.SetDefault("unmatched_queue", 256)
	v.SetDefault("line_endpoint", "")
	v.SetDefault("admin_token", "")
}

// Load decodes v and fills tenants from the environment when the config
// file lists none. lookupEnv is usually os.LookupEnv.
func Load(v *viper.Viper, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if len(cfg.Tenants) == 0 {
		cfg.Tenants = TenantsFromEnv(lookupEnv)
	}

	for i := range cfg.Tenants {
		if cfg.Tenants[i].Name == "" {
			cfg.Tenants[i].Name = "tenant-" + strconv.Itoa(i+1)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals v without validating it, for commands that only need
// the rule source settings.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Source = strings.ToLower(cfg.Source)
	return &cfg, nil
}

// MatchMode is the keyword normalization selected by UnicodeFolding.
func (c *Config) MatchMode() rules.Mode {
	if c.UnicodeFolding {
		return rules.ModeFold
	}
	return rules.ModeLower
}

// TenantsFromEnv reads LINE_CHANNEL_SECRET, LINE_CHANNEL_ACCESS_TOKEN and
// SHEET_ID, then the same names suffixed _2, _3 and so on until a secret
// is missing.
func TenantsFromEnv(lookupEnv func(string) (string, bool)) []Tenant {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	var tenants []Tenant
	for n := 1; ; n++ {
		suffix := ""
		if n > 1 {
			suffix = "_" + strconv.Itoa(n)
		}

		secret, ok := lookupEnv("LINE_CHANNEL_SECRET" + suffix)
		if !ok || secret == "" {
			return tenants
		}
		token, _ := lookupEnv("LINE_CHANNEL_ACCESS_TOKEN" + suffix)
		table, _ := lookupEnv("SHEET_ID" + suffix)

		tenants = append(tenants, Tenant{
			ChannelSecret: secret,
			ChannelToken:  token,
			TableID:       table,
		})
	}
}

func (c *Config) Validate() error {
	if len(c.Tenants) == 0 {
		return ErrNoTenants
	}

	var errs []error
	for i, t := range c.Tenants {
		if t.ChannelSecret == "" {
			errs = append(errs, fmt.Errorf("tenant %d (%s): channel_secret is required", i+1, t.Name))
		}
		if t.ChannelToken == "" {
			errs = append(errs, fmt.Errorf("tenant %d (%s): channel_token is required", i+1, t.Name))
		}
		if t.TableID == "" {
			errs = append(errs, fmt.Errorf("tenant %d (%s): table_id is required", i+1, t.Name))
		}
	}

	switch strings.ToLower(c.Source) {
	case SourceSheets, SourceFile:
		c.Source = strings.ToLower(c.Source)
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrBadSource, c.Source))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.ReplyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("reply_timeout must be positive, got %s", c.ReplyTimeout))
	}

	return errors.Join(errs...)
}

// TableIDs returns the distinct table ids in tenant order.
func (c *Config) TableIDs() []string {
	seen := make(map[string]bool, len(c.Tenants))
	ids := make([]string, 0, len(c.Tenants))
	for _, t := range c.Tenants {
		if !seen[t.TableID] {
			seen[t.TableID] = true
			ids = append(ids, t.TableID)
		}
	}
	return ids
}
