/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-msglimit/log"
	"github.com/acronis/go-msglimit/log/logtest"
)

func TestRespondCodeAndJSON(t *testing.T) {
	t.Run("no body", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusNoContent, nil, nil)
		require.Equal(t, http.StatusNoContent, resp.Code)
		require.Empty(t, resp.Header().Get("Content-Type"))
		require.Empty(t, resp.Body.String())
	})

	t.Run("html is not escaped", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusAccepted, map[string]string{"text": "<b>hi</b>"}, nil)
		require.Equal(t, http.StatusAccepted, resp.Code)
		require.Equal(t, ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		require.Equal(t, `{"text":"<b>hi</b>"}`, resp.Body.String())
	})

	t.Run("marshaling error", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusOK, math.Inf(1), logRecorder)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		_, found := logRecorder.FindEntry("error while marshaling json for response body")
		require.True(t, found)
	})
}

func TestRespondError(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	resp := httptest.NewRecorder()
	apiErr := NewTooManyRequestsError("Chat").AddContext("retryAfter", 3).AddContext("key", "alice")
	RespondError(resp, http.StatusTooManyRequests, apiErr, logRecorder)

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"Chat","code":"tooManyRequests","message":"Too many requests.",
		"context":{"retryAfter":3,"key":"alice"}}}`, resp.Body.String())

	entry, found := logRecorder.FindEntry("error in response")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	field, found := entry.FindField("error_code")
	require.True(t, found)
	require.Equal(t, "tooManyRequests", string(field.Bytes))
}

func TestRespondInternalError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondInternalError(resp, "Chat", nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"Chat","code":"internalError","message":"Internal error."}}`, resp.Body.String())
}
