// Package config builds the runtime wiring options for the service facade,
// in the functional-options style the reference app layer uses for its
// Config/Wire split. There is no config-file format: callers construct a
// Config programmatically.
package config

import "go.uber.org/zap"

// StorageBackend selects which domain.Storage implementation Wire builds.
type StorageBackend int

const (
	// StorageMemory loses all state, including MLS private key material,
	// on process exit.
	StorageMemory StorageBackend = iota
	// StorageSQLite persists to the sqlite file at Config.SQLitePath.
	StorageSQLite
)

// Config holds runtime wiring options for building the service.
type Config struct {
	StorageBackend StorageBackend
	SQLitePath     string // required when StorageBackend == StorageSQLite

	RelayURLs []string

	// IdentitySecret is a 32-byte hex-encoded secp256k1 scalar. Empty
	// generates a fresh identity.
	IdentitySecret string

	Logger *zap.Logger // optional; defaults to zap.NewNop()
}

// Option mutates a Config being built by New.
type Option func(*Config)

// New builds a Config from the given options.
func New(opts ...Option) Config {
	cfg := Config{StorageBackend: StorageMemory}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// WithSQLiteStorage selects the durable on-disk backend at path.
func WithSQLiteStorage(path string) Option {
	return func(c *Config) {
		c.StorageBackend = StorageSQLite
		c.SQLitePath = path
	}
}

// WithRelays sets the relay URLs to connect to.
func WithRelays(urls ...string) Option {
	return func(c *Config) { c.RelayURLs = urls }
}

// WithIdentitySecret sets a fixed identity secret instead of generating one.
func WithIdentitySecret(secretHex string) Option {
	return func(c *Config) { c.IdentitySecret = secretHex }
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}
