/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration parameters of the library components
// (message rate limits, logging) from files, readers and environment variables.
package config

// Config is a common interface for configuration objects that may be used by Loader.
//
// SetProviderDefaults is called first for every object, so the defaults of all objects
// are known before any value is read. Set reads and validates the values afterward.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

func dataProviderFor(dp DataProvider, cfg Config) DataProvider {
	if kpHolder, ok := cfg.(KeyPrefixProvider); ok && kpHolder.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kpHolder.KeyPrefix())
	}
	return dp
}
