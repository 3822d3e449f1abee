/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/acronis/go-msglimit/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress             = "address"
	cfgKeyUnixSocketPath      = "unixSocketPath"
	cfgKeyTLSEnabled          = "tls.enabled"
	cfgKeyTLSCert             = "tls.cert"
	cfgKeyTLSKey              = "tls.key"
	cfgKeyTimeoutsWrite       = "timeouts.write"
	cfgKeyTimeoutsRead        = "timeouts.read"
	cfgKeyTimeoutsReadHeader  = "timeouts.readHeader"
	cfgKeyTimeoutsIdle        = "timeouts.idle"
	cfgKeyTimeoutsShutdown    = "timeouts.shutdown"
	cfgKeyLimitsMaxBodySize   = "limits.maxBodySize"
	cfgKeyRequestIDHeaderName = "requestIDHeader"
)

// Default values.
const (
	DefaultAddress            = ":8080"
	DefaultTimeoutsWrite      = time.Minute
	DefaultTimeoutsRead       = time.Second * 15
	DefaultTimeoutsReadHeader = time.Second * 10
	DefaultTimeoutsIdle       = time.Minute
	DefaultTimeoutsShutdown   = time.Second * 5
	DefaultLimitsMaxBodySize  = 1024 * 1024
	DefaultRequestIDHeader    = "X-Request-ID"
)

// Config represents a set of configuration parameters for HTTPServer.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
//
// Example of YAML:
//
//	server:
//	  address: 127.0.0.1:8080
//	  timeouts:
//	    shutdown: 10s
//	  limits:
//	    maxBodySize: 64K
type Config struct {
	Address        string         `mapstructure:"address" yaml:"address" json:"address"`
	UnixSocketPath string         `mapstructure:"unixSocketPath" yaml:"unixSocketPath" json:"unixSocketPath"`
	Timeouts       TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits         LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	TLS            TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`

	// RequestIDHeader is the name of the header with the request ID. It's generated if the request doesn't have one.
	RequestIDHeader string `mapstructure:"requestIDHeader" yaml:"requestIDHeader" json:"requestIDHeader"`

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
		keyPrefix: makeConfigOptions(options).keyPrefix,
		Address:   DefaultAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(DefaultTimeoutsWrite),
			Read:       config.TimeDuration(DefaultTimeoutsRead),
			ReadHeader: config.TimeDuration(DefaultTimeoutsReadHeader),
			Idle:       config.TimeDuration(DefaultTimeoutsIdle),
			Shutdown:   config.TimeDuration(DefaultTimeoutsShutdown),
		},
		Limits:          LimitsConfig{MaxBodySize: DefaultLimitsMaxBodySize},
		RequestIDHeader: DefaultRequestIDHeader,
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

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyTimeoutsWrite, DefaultTimeoutsWrite.String())
	dp.SetDefault(cfgKeyTimeoutsRead, DefaultTimeoutsRead.String())
	dp.SetDefault(cfgKeyTimeoutsReadHeader, DefaultTimeoutsReadHeader.String())
	dp.SetDefault(cfgKeyTimeoutsIdle, DefaultTimeoutsIdle.String())
	dp.SetDefault(cfgKeyTimeoutsShutdown, DefaultTimeoutsShutdown.String())
	dp.SetDefault(cfgKeyLimitsMaxBodySize, config.ByteSize(DefaultLimitsMaxBodySize).String())
	dp.SetDefault(cfgKeyRequestIDHeaderName, DefaultRequestIDHeader)
}

// Set sets HTTPServer configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.UnixSocketPath, err = dp.GetString(cfgKeyUnixSocketPath); err != nil {
		return err
	}
	if c.Address == "" && c.UnixSocketPath == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("either address or unixSocketPath should be set"))
	}
	if c.RequestIDHeader, err = dp.GetString(cfgKeyRequestIDHeaderName); err != nil {
		return err
	}
	if err = c.TLS.set(dp); err != nil {
		return err
	}
	if err = c.Timeouts.set(dp); err != nil {
		return err
	}
	return c.Limits.set(dp)
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

func (t *TimeoutsConfig) set(dp config.DataProvider) error {
	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyTimeoutsWrite, &t.Write},
		{cfgKeyTimeoutsRead, &t.Read},
		{cfgKeyTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyTimeoutsIdle, &t.Idle},
		{cfgKeyTimeoutsShutdown, &t.Shutdown},
	} {
		dur, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("should be >= 0"))
		}
		*item.dst = config.TimeDuration(dur)
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySize is the maximum size of the request body. Zero means no limit.
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

func (l *LimitsConfig) set(dp config.DataProvider) error {
	var err error
	l.MaxBodySize, err = dp.GetByteSize(cfgKeyLimitsMaxBodySize)
	return err
}

// TLSConfig contains configuration parameters needed to initialize (or not) secure server.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

func (s *TLSConfig) set(dp config.DataProvider) error {
	var err error
	if s.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if s.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if s.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if s.Enabled && (s.Certificate == "" || s.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, fmt.Errorf("both cert and key should be set"))
	}
	return nil
}
