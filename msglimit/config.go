/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import (
	"fmt"
	"time"

	"github.com/acronis/go-msglimit/config"
)

const cfgDefaultKeyPrefix = "msglimit"

const (
	cfgKeyMaxMessages   = "maxMessages"
	cfgKeyCountDuration = "countDuration"
)

// Default values.
const (
	DefaultMaxMessages   = 10
	DefaultCountDuration = time.Minute
)

// Config represents a set of configuration parameters for the message rate limiting.
// It may be loaded with config.Loader or decoded from JSON/YAML directly.
//
// Example of YAML:
//
//	msglimit:
//	  maxMessages: 5
//	  countDuration: 10s
type Config struct {
	// MaxMessages is the maximum number of messages admitted within CountDuration.
	// Zero rejects all messages.
	MaxMessages int `mapstructure:"maxMessages" yaml:"maxMessages" json:"maxMessages"`

	// CountDuration is the length of the trailing window. Zero turns the limiter into
	// a gate of MaxMessages messages per single instant.
	CountDuration config.TimeDuration `mapstructure:"countDuration" yaml:"countDuration" json:"countDuration"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

func makeConfigOptions(options []ConfigOption) configOptions {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	return &Config{keyPrefix: makeConfigOptions(options).keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	return &Config{
		keyPrefix:     makeConfigOptions(options).keyPrefix,
		MaxMessages:   DefaultMaxMessages,
		CountDuration: config.TimeDuration(DefaultCountDuration),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxMessages, DefaultMaxMessages)
	dp.SetDefault(cfgKeyCountDuration, DefaultCountDuration.String())
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	maxMessages, err := dp.GetInt(cfgKeyMaxMessages)
	if err != nil {
		return err
	}
	if maxMessages < 0 {
		return dp.WrapKeyErr(cfgKeyMaxMessages, fmt.Errorf("%w: should be >= 0", ErrInvalidConfiguration))
	}

	countDuration, err := dp.GetDuration(cfgKeyCountDuration)
	if err != nil {
		return err
	}
	if countDuration < 0 {
		return dp.WrapKeyErr(cfgKeyCountDuration, fmt.Errorf("%w: should be >= 0", ErrInvalidConfiguration))
	}

	c.MaxMessages = maxMessages
	c.CountDuration = config.TimeDuration(countDuration)
	return nil
}

// Validate checks that the configuration may be used for creating a limiter.
func (c Config) Validate() error {
	if c.MaxMessages < 0 {
		return fmt.Errorf("%w: max messages should be >= 0, got %d", ErrInvalidConfiguration, c.MaxMessages)
	}
	if c.CountDuration < 0 {
		return fmt.Errorf("%w: count duration should be >= 0, got %s", ErrInvalidConfiguration, c.CountDuration)
	}
	return nil
}
