package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/upb/market-gateway/models"
	"gopkg.in/yaml.v3"
)

// ProvidersConfig holds the market data vendor table
type ProvidersConfig struct {
	Entries map[models.ProviderID]models.ProviderConfig
}

// providersFile is the on-disk shape of PROVIDERS_FILE
type providersFile struct {
	Providers map[string]providerEntry `yaml:"providers"`
}

type providerEntry struct {
	Endpoint string             `yaml:"endpoint"`
	APIKey   string             `yaml:"api_key"`
	Timeout  time.Duration      `yaml:"timeout"`
	Limits   models.LimitConfig `yaml:"limits"`
}

// defaultProviders mirrors the free tiers of each vendor
func defaultProviders() map[models.ProviderID]models.ProviderConfig {
	return map[models.ProviderID]models.ProviderConfig{
		models.ProviderFinnhub: {
			Endpoint: "https://finnhub.io/api/v1",
			Limits:   models.LimitConfig{PerMinute: models.IntPtr(60)},
		},
		models.ProviderAlphaVantage: {
			Endpoint: "https://www.alphavantage.co",
			Limits:   models.LimitConfig{PerDay: models.IntPtr(25)},
		},
		models.ProviderPolygon: {
			Endpoint: "https://api.polygon.io",
			Limits:   models.LimitConfig{PerMinute: models.IntPtr(5)},
		},
		models.ProviderTwelveData: {
			Endpoint: "https://api.twelvedata.com",
			Limits:   models.LimitConfig{PerMinute: models.IntPtr(8), PerDay: models.IntPtr(800)},
		},
		models.ProviderFMP: {
			Endpoint: "https://financialmodelingprep.com/api/v3",
			Limits:   models.LimitConfig{PerDay: models.IntPtr(250)},
		},
		models.ProviderMarketaux: {
			Endpoint: "https://api.marketaux.com/v1",
			Limits:   models.LimitConfig{PerDay: models.IntPtr(100)},
		},
		models.ProviderTiingo: {
			Endpoint: "https://api.tiingo.com",
			Limits:   models.LimitConfig{PerMonth: models.IntPtr(30000)},
		},
	}
}

// loadProvidersConfig merges defaults, the optional YAML file and env overrides
func loadProvidersConfig(path string, timeout time.Duration) (ProvidersConfig, error) {
	entries := defaultProviders()
	for id, entry := range entries {
		entry.ID = id
		entry.Timeout = timeout
		entries[id] = entry
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// optional
		case err != nil:
			return ProvidersConfig{}, fmt.Errorf("failed to read %s: %w", path, err)
		default:
			if err := applyProvidersFile(entries, data); err != nil {
				return ProvidersConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	for id, entry := range entries {
		prefix := strings.ToUpper(string(id)) + "_"
		entry.Credential = getEnv(prefix+"API_KEY", entry.Credential)
		entry.Endpoint = getEnv(prefix+"BASE_URL", entry.Endpoint)
		entry.Timeout = getEnvAsDuration(prefix+"TIMEOUT", entry.Timeout)
		if v := getEnvAsOptionalInt(prefix + "PER_MINUTE"); v != nil {
			entry.Limits.PerMinute = v
		}
		if v := getEnvAsOptionalInt(prefix + "PER_DAY"); v != nil {
			entry.Limits.PerDay = v
		}
		if v := getEnvAsOptionalInt(prefix + "PER_MONTH"); v != nil {
			entry.Limits.PerMonth = v
		}
		entries[id] = entry
	}

	return ProvidersConfig{Entries: entries}, nil
}

// applyProvidersFile overlays YAML entries onto the defaults.
// A limits block in the file replaces the default limits of that vendor.
func applyProvidersFile(entries map[models.ProviderID]models.ProviderConfig, data []byte) error {
	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for name, fe := range file.Providers {
		id, err := models.ParseProviderID(name)
		if err != nil {
			return err
		}
		entry := entries[id]
		if fe.Endpoint != "" {
			entry.Endpoint = fe.Endpoint
		}
		if fe.APIKey != "" {
			entry.Credential = fe.APIKey
		}
		if fe.Timeout > 0 {
			entry.Timeout = fe.Timeout
		}
		if !fe.Limits.IsUnbounded() {
			entry.Limits = fe.Limits
		}
		entries[id] = entry
	}
	return nil
}

// Get returns the configuration of a provider that has a credential
func (p ProvidersConfig) Get(id models.ProviderID) (models.ProviderConfig, bool) {
	entry, ok := p.Entries[id]
	if !ok || entry.Credential == "" {
		return models.ProviderConfig{}, false
	}
	return entry, true
}

// Configured lists providers with a credential, sorted by name
func (p ProvidersConfig) Configured() []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(p.Entries))
	for id := range p.Entries {
		if _, ok := p.Get(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks endpoints, timeouts and limits of every entry
func (p ProvidersConfig) Validate() error {
	for id, entry := range p.Entries {
		if entry.Endpoint == "" {
			return fmt.Errorf("provider %s: endpoint is required", id)
		}
		if entry.Timeout <= 0 {
			return fmt.Errorf("provider %s: timeout must be positive", id)
		}
		for name, limit := range map[string]*int{
			"per_minute": entry.Limits.PerMinute,
			"per_day":    entry.Limits.PerDay,
			"per_month":  entry.Limits.PerMonth,
		} {
			if limit != nil && *limit < 0 {
				return fmt.Errorf("provider %s: %s must not be negative", id, name)
			}
		}
	}
	return nil
}
