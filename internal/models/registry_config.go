package models

import "time"

// DefaultRegistryURL is the package registry used for <name>@<version> locators
const DefaultRegistryURL = "https://spkg.io"

// RegistryConfig configures package resolution
type RegistryConfig struct {
	URL       string `json:"url,omitzero" yaml:"url"`
	CacheSize int    `json:"cache_size,omitzero" yaml:"cache_size"`
}

// HTTPConfig configures the outbound HTTP client shared by rpc, api and package fetches
type HTTPConfig struct {
	Timeout    time.Duration `json:"timeout,omitzero" yaml:"timeout"`
	Retries    int           `json:"retries,omitzero" yaml:"retries"`
	RetryDelay time.Duration `json:"retry_delay,omitzero" yaml:"retry_delay"`
}

// StreamConfig configures the block stream transport
type StreamConfig struct {
	MaxRetries      int           `json:"max_retries,omitzero" yaml:"max_retries"`
	RetryBackoff    time.Duration `json:"retry_backoff,omitzero" yaml:"retry_backoff"`
	Plaintext       bool          `json:"plaintext,omitzero" yaml:"plaintext"`
	Insecure        bool          `json:"insecure,omitzero" yaml:"insecure"`
	FinalBlocksOnly bool          `json:"final_blocks_only,omitzero" yaml:"final_blocks_only"`
}
