// Package config loads and validates the gateway's resolved Configuration
// Model: an immutable snapshot of providers, model mappings, storage
// selection, and defaults, consumed by every other component. Loading
// happens exactly once at startup; the validated snapshot is shared by
// reference thereafter and never mutated at runtime.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghiac/llmgate/model"
)

// Config is the resolved, validated Configuration Model.
type Config struct {
	Providers     []model.Provider
	Mappings      []model.ModelMapping
	DefaultContext model.ContextConfig
	Storage       StorageConfig
	SessionTTL    time.Duration
	HTTP          HTTPConfig

	providerByName map[string]model.Provider
	mappingByName  map[string]model.ModelMapping
}

// StorageConfig selects and parameterizes the Session Store backend.
type StorageConfig struct {
	// Kind is one of "memory", "redis", "mongodb", "sqlite".
	Kind string
	URL  string
}

// HTTPConfig is the ambient HTTP listener configuration; outside the
// core's scope but required to actually run the process.
type HTTPConfig struct {
	Host string
	Port int
}

// Provider looks up a configured provider by name.
func (c *Config) Provider(name string) (model.Provider, bool) {
	p, ok := c.providerByName[name]
	return p, ok
}

// Mapping looks up a configured model mapping by display name.
func (c *Config) Mapping(displayName string) (model.ModelMapping, bool) {
	m, ok := c.mappingByName[displayName]
	return m, ok
}

// Load reads and resolves the YAML configuration at path, substituting
// ${VAR} environment placeholders, and validates the result. On any
// validation failure the returned error names the offending field — the
// caller (main) is expected to treat a non-nil error as fatal and refuse
// to serve traffic, per the Configuration Model's fail-fast contract.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	resolved, err := resolvePlaceholders(string(raw))
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(resolved), &fc); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg, err := build(fc)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolvePlaceholders substitutes every ${VAR} occurrence with the named
// environment variable's value. An unresolved placeholder (the variable
// is unset) fails startup, per the environment contract.
func resolvePlaceholders(source string) (string, error) {
	var missing []string
	result := placeholderPattern.ReplaceAllStringFunc(source, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", &ConfigError{Field: "environment", Message: fmt.Sprintf("unresolved placeholder(s): %v", missing)}
	}
	return result, nil
}

func build(fc fileConfig) (*Config, error) {
	cfg := &Config{
		providerByName: make(map[string]model.Provider, len(fc.Providers)),
		mappingByName:  make(map[string]model.ModelMapping, len(fc.Mappings)),
	}

	for _, fp := range fc.Providers {
		timeout := time.Duration(fp.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		p := model.Provider{
			Name:           fp.Name,
			BaseURL:        fp.BaseURL,
			APIKey:         fp.APIKey,
			Timeout:        timeout,
			MaxRetries:     fp.MaxRetries,
			ModelAllowList: fp.ModelAllowList,
			ProviderType:   model.ProviderType(fp.ProviderType),
		}
		if p.ProviderType == "" {
			p.ProviderType = model.ProviderTypeOpenAI
		}
		cfg.Providers = append(cfg.Providers, p)
		cfg.providerByName[p.Name] = p
	}

	cfg.DefaultContext = buildContextConfig(fc.Default, model.DefaultContextConfig())

	for _, fm := range fc.Mappings {
		m := model.ModelMapping{
			DisplayName:     fm.DisplayName,
			ProviderName:    fm.ProviderName,
			ActualModelName: fm.ActualModelName,
		}
		if fm.ContextConfig != nil {
			cc := buildContextConfig(*fm.ContextConfig, cfg.DefaultContext)
			m.ContextConfig = &cc
		}
		cfg.Mappings = append(cfg.Mappings, m)
		cfg.mappingByName[m.DisplayName] = m
	}

	cfg.Storage = StorageConfig{Kind: fc.Storage.Kind, URL: fc.Storage.URL}
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = "memory"
	}

	if fc.SessionTTLSeconds > 0 {
		cfg.SessionTTL = time.Duration(fc.SessionTTLSeconds) * time.Second
	} else {
		cfg.SessionTTL = defaultSessionTTL
	}

	cfg.HTTP = HTTPConfig{Host: fc.HTTP.Host, Port: fc.HTTP.Port}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}

	return cfg, nil
}

func buildContextConfig(fc fileContextConfig, fallback model.ContextConfig) model.ContextConfig {
	cc := fallback
	if fc.MaxTurns > 0 {
		cc.MaxTurns = fc.MaxTurns
	}
	if fc.MaxTokens > 0 {
		cc.MaxTokens = fc.MaxTokens
	}
	if fc.ReductionMode != "" {
		cc.ReductionMode = model.ReductionMode(fc.ReductionMode)
	}
	if fc.SummarizationModel != "" {
		cc.SummarizationModel = fc.SummarizationModel
	}
	if fc.PreserveSystemMessage != nil {
		cc.PreserveSystemMessage = *fc.PreserveSystemMessage
	}
	cc.MemoryZoneEnabled = fc.MemoryZoneEnabled
	return cc
}

// FromResolved builds a validated Config directly from already-resolved
// model values, bypassing the YAML file and environment-substitution
// steps. It exists for callers that assemble a Configuration
// programmatically — tests, and embedders that source providers/mappings
// from somewhere other than a config file.
func FromResolved(providers []model.Provider, mappings []model.ModelMapping, defaultContext model.ContextConfig) (*Config, error) {
	cfg := &Config{
		Providers:      providers,
		Mappings:       mappings,
		DefaultContext: defaultContext,
		Storage:        StorageConfig{Kind: "memory"},
		SessionTTL:     defaultSessionTTL,
		HTTP:           HTTPConfig{Host: "0.0.0.0", Port: 8080},
		providerByName: make(map[string]model.Provider, len(providers)),
		mappingByName:  make(map[string]model.ModelMapping, len(mappings)),
	}
	for _, p := range providers {
		cfg.providerByName[p.Name] = p
	}
	for _, m := range mappings {
		cfg.mappingByName[m.DisplayName] = m
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetAddress returns the HTTP listener address.
func (c *Config) GetAddress() string {
	return c.HTTP.Host + ":" + strconv.Itoa(c.HTTP.Port)
}
