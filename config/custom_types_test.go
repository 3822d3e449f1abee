/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var errTest = errors.New("test error")

func TestTimeDuration(t *testing.T) {
	type holder struct {
		D TimeDuration `json:"d" yaml:"d"`
	}

	tests := []struct {
		name    string
		json    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", json: `{"d":"1h30m"}`, yaml: "d: 1h30m", want: 90 * time.Minute},
		{name: "nanoseconds", json: `{"d":1000}`, yaml: "d: 1000", want: time.Microsecond},
		{name: "zero", json: `{"d":"0s"}`, yaml: "d: 0s", want: 0},
		{name: "negative", json: `{"d":"-1s"}`, yaml: "d: -1s", want: -time.Second},
		{name: "invalid", json: `{"d":"soon"}`, yaml: "d: soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hj, hy holder
			errJSON := json.Unmarshal([]byte(tt.json), &hj)
			errYAML := yaml.Unmarshal([]byte(tt.yaml), &hy)
			if tt.wantErr {
				require.Error(t, errJSON)
				require.Error(t, errYAML)
				return
			}
			require.NoError(t, errJSON)
			require.NoError(t, errYAML)
			require.Equal(t, tt.want, time.Duration(hj.D))
			require.Equal(t, tt.want, time.Duration(hy.D))
		})
	}

	out, err := json.Marshal(holder{D: TimeDuration(10 * time.Second)})
	require.NoError(t, err)
	require.JSONEq(t, `{"d":"10s"}`, string(out))
}

func TestByteSize(t *testing.T) {
	var b ByteSize
	require.NoError(t, json.Unmarshal([]byte(`"1Mi"`), &b))
	require.Equal(t, ByteSize(1024*1024), b)

	require.NoError(t, yaml.Unmarshal([]byte(`250M`), &b))
	require.Equal(t, ByteSize(250*1024*1024), b)

	require.NoError(t, json.Unmarshal([]byte(`512`), &b))
	require.Equal(t, ByteSize(512), b)

	require.Error(t, json.Unmarshal([]byte(`-5`), &b))
	require.Error(t, json.Unmarshal([]byte(`"lots"`), &b))

	require.Equal(t, "1K", ByteSize(1024).String())
}
