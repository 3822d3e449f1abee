/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"time"

	"github.com/acronis/go-msglimit/config"
	"github.com/acronis/go-msglimit/httpserver"
	"github.com/acronis/go-msglimit/httpserver/middleware"
	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/msglimit"
	"github.com/acronis/go-msglimit/profserver"
)

const envVarsPrefix = "MSGLIMIT"

const (
	cfgKeyLimiterMaxKeys        = "maxKeys"
	cfgKeyLimiterSweepInterval  = "sweepInterval"
	cfgKeyLimiterBacklogLimit   = "backlog.limit"
	cfgKeyLimiterBacklogTimeout = "backlog.timeout"
	cfgKeyLimiterDryRun         = "dryRun"
	cfgKeyLimiterExcludedChats  = "excludedChats"
)

const (
	defaultLimiterMaxKeys       = 10000
	defaultLimiterSweepInterval = time.Minute
)

// limiterConfig holds the per-chat limiting parameters that are not part of the window itself.
type limiterConfig struct {
	MaxKeys        int
	SweepInterval  time.Duration
	BacklogLimit   int
	BacklogTimeout time.Duration
	DryRun         bool
	ExcludedChats  []string
}

var _ config.Config = (*limiterConfig)(nil)
var _ config.KeyPrefixProvider = (*limiterConfig)(nil)

func (c *limiterConfig) KeyPrefix() string {
	return "limiter"
}

func (c *limiterConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLimiterMaxKeys, defaultLimiterMaxKeys)
	dp.SetDefault(cfgKeyLimiterSweepInterval, defaultLimiterSweepInterval.String())
	dp.SetDefault(cfgKeyLimiterBacklogTimeout, middleware.DefaultMessageRateLimitBacklogTimeout.String())
}

func (c *limiterConfig) Set(dp config.DataProvider) error {
	var err error
	if c.MaxKeys, err = dp.GetInt(cfgKeyLimiterMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyLimiterMaxKeys, fmt.Errorf("should be >= 0"))
	}
	if c.SweepInterval, err = dp.GetDuration(cfgKeyLimiterSweepInterval); err != nil {
		return err
	}
	if c.SweepInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyLimiterSweepInterval, fmt.Errorf("should be > 0"))
	}
	if c.BacklogLimit, err = dp.GetInt(cfgKeyLimiterBacklogLimit); err != nil {
		return err
	}
	if c.BacklogLimit < 0 {
		return dp.WrapKeyErr(cfgKeyLimiterBacklogLimit, fmt.Errorf("should be >= 0"))
	}
	if c.BacklogTimeout, err = dp.GetDuration(cfgKeyLimiterBacklogTimeout); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyLimiterDryRun); err != nil {
		return err
	}
	if c.ExcludedChats, err = dp.GetStringSlice(cfgKeyLimiterExcludedChats); err != nil {
		return err
	}
	return nil
}

type appConfig struct {
	Log      *log.Config
	Server   *httpserver.Config
	MsgLimit *msglimit.Config
	Limiter  *limiterConfig
	Prof     *profserver.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:      log.NewConfig(),
		Server:   httpserver.NewConfig(),
		MsgLimit: msglimit.NewConfig(),
		Limiter:  &limiterConfig{},
		Prof:     profserver.NewConfig(),
	}
}

// loadAppConfig loads configuration from the YAML file (if path is not empty) and MSGLIMIT_* environment variables.
func loadAppConfig(path string) (*appConfig, error) {
	cfg := newAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	var err error
	if path != "" {
		err = loader.LoadFromFile(path, config.DataTypeYAML, cfg.Log, cfg.Server, cfg.MsgLimit, cfg.Limiter, cfg.Prof)
	} else {
		err = loader.Load(cfg.Log, cfg.Server, cfg.MsgLimit, cfg.Limiter, cfg.Prof)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
