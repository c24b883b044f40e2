package config

import "time"

// fileConfig is the on-disk YAML shape. Every string field may contain a
// ${VAR} placeholder, resolved against the process environment during
// Load. This mirrors the resolved Configuration Model schema of §3/§6 of
// the gateway's core contract, with YAML as the implementer-chosen
// concrete syntax.
type fileConfig struct {
	Providers []fileProvider    `yaml:"providers"`
	Mappings  []fileMapping     `yaml:"mappings"`
	Default   fileContextConfig `yaml:"defaultContext"`
	Storage   fileStorage       `yaml:"storage"`
	SessionTTLSeconds int       `yaml:"sessionTtlSeconds"`
	HTTP      fileHTTP          `yaml:"http"`
}

type fileProvider struct {
	Name           string   `yaml:"name"`
	BaseURL        string   `yaml:"baseUrl"`
	APIKey         string   `yaml:"apiKey"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
	MaxRetries     int      `yaml:"maxRetries"`
	ModelAllowList []string `yaml:"modelAllowList"`
	ProviderType   string   `yaml:"providerType"`
}

type fileMapping struct {
	DisplayName     string             `yaml:"displayName"`
	ProviderName    string             `yaml:"providerName"`
	ActualModelName string             `yaml:"actualModelName"`
	ContextConfig   *fileContextConfig `yaml:"contextConfig"`
}

type fileContextConfig struct {
	MaxTurns              int    `yaml:"maxTurns"`
	MaxTokens             int    `yaml:"maxTokens"`
	ReductionMode         string `yaml:"reductionMode"`
	SummarizationModel    string `yaml:"summarizationModel"`
	PreserveSystemMessage *bool  `yaml:"preserveSystemMessage"`
	MemoryZoneEnabled     bool   `yaml:"memoryZoneEnabled"`
}

type fileStorage struct {
	// Kind is one of "memory", "redis", "mongodb", "sqlite".
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

type fileHTTP struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// defaultSessionTTL is used when the file omits sessionTtlSeconds.
const defaultSessionTTL = 30 * time.Minute
