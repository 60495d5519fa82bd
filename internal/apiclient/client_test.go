package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c, srv
}

func TestGetSuccess(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candles":[1,2,3]}`))
	})

	raw, err := c.Get(context.Background(), "/candles", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/candles", gotPath)

	var payload struct {
		Candles []int `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, []int{1, 2, 3}, payload.Candles)
}

func TestDefaultAndOverrideHeaders(t *testing.T) {
	var contentType, auth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	_, err = c.Get(context.Background(), "/x", &Options{Headers: map[string]string{
		"Content-Type":  "text/plain",
		"Authorization": "Bearer token",
	}})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType, "调用方头部应覆盖默认值")
	assert.Equal(t, "Bearer token", auth)
}

func TestPostSerializesBody(t *testing.T) {
	var received map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.Post(context.Background(), "/tasks", map[string]any{"symbol": "BTCUSDT"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", received["symbol"])
}

func TestHTTPErrorWithJSONMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"symbol 不能为空"}`))
	})

	_, err := c.Get(context.Background(), "/candles", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "symbol 不能为空", apiErr.Message)
	assert.NotEmpty(t, apiErr.Response)
}

func TestHTTPErrorMessageField(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"task already running"}`))
	})

	_, err := c.Get(context.Background(), "/tasks", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "task already running", apiErr.Message)
}

func TestHTTPErrorTextBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	_, err := c.Get(context.Background(), "/x", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestHTTPErrorStatusFallback(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), "/missing", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "404")
}

func TestNetworkErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close() // 连接必然失败

	c, err := New(Config{BaseURL: base})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/x", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
	assert.NotEqual(t, timeoutMessage, apiErr.Message)
	assert.NotEmpty(t, apiErr.Message)
}

func TestTimeoutRemapped(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})

	start := time.Now()
	_, err := c.Get(context.Background(), "/slow", &Options{Timeout: 50 * time.Millisecond})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, timeoutMessage, apiErr.Message)
	assert.Zero(t, apiErr.StatusCode)
	assert.True(t, apiErr.IsTimeout())
	assert.Less(t, time.Since(start), 2*time.Second, "超时应中断在途请求而不是等它结束")
}

func TestFastResponseBeatsTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	raw, err := c.Get(context.Background(), "/fast", &Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	// 计时器在 defer cancel 中被清理；稍等确认没有迟到的干扰。
	time.Sleep(20 * time.Millisecond)
}

func TestPathQueryPassthrough(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	})

	qs := BuildQueryString([]Param{P("symbol", "BTCUSDT"), P("limit", 200)})
	_, err := c.Get(context.Background(), "/candles"+qs, nil)
	require.NoError(t, err)
	assert.Equal(t, "symbol=BTCUSDT&limit=200", gotQuery)
}
