/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit_test

import (
	"bytes"
	"fmt"
	"time"

	"github.com/acronis/go-msglimit/config"
	"github.com/acronis/go-msglimit/msglimit"
)

func ExampleWindowLimiter() {
	cfgData := bytes.NewBufferString(`
msglimit:
  maxMessages: 3
  countDuration: 10s
`)
	cfg := msglimit.NewConfig()
	if err := config.NewDefaultLoader("chat").LoadFromReader(cfgData, config.DataTypeYAML, cfg); err != nil {
		panic(err)
	}
	limiter := msglimit.MustNewWindowLimiter(*cfg)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second, 11 * time.Second} {
		now := start.Add(offset)
		fmt.Printf("%s: limited=%v\n", offset, limiter.CheckAndRegister(now))
	}

	// Output:
	// 0s: limited=false
	// 1s: limited=false
	// 2s: limited=false
	// 3s: limited=true
	// 11s: limited=false
}

func ExampleKeyedLimiter() {
	cfg := msglimit.Config{MaxMessages: 1, CountDuration: config.TimeDuration(time.Minute)}
	limiter, err := msglimit.NewKeyedLimiter(cfg, msglimit.KeyedLimiterOpts{MaxKeys: 1000})
	if err != nil {
		panic(err)
	}
	for _, user := range []string{"alice", "bob", "alice"} {
		fmt.Printf("%s: limited=%v\n", user, limiter.CheckAndRegister(user))
	}

	// Output:
	// alice: limited=false
	// bob: limited=false
	// alice: limited=true
}
