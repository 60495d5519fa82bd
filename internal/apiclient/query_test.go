package apiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueryString(t *testing.T) {
	qs := BuildQueryString([]Param{
		P("symbol", "BTCUSDT"),
		P("timeframe", "1m"),
		P("limit", 200),
	})
	assert.Equal(t, "?symbol=BTCUSDT&timeframe=1m&limit=200", qs)
}

func TestBuildQueryStringSkipsNil(t *testing.T) {
	qs := BuildQueryString([]Param{
		P("start_ts", int64(1735689600000)),
		P("end_ts", nil),
		P("limit", 50),
	})
	assert.Equal(t, "?start_ts=1735689600000&limit=50", qs)
}

func TestBuildQueryStringEmpty(t *testing.T) {
	assert.Equal(t, "", BuildQueryString(nil))
	assert.Equal(t, "", BuildQueryString([]Param{P("a", nil), P("", "x")}))
}

func TestBuildQueryStringEscapes(t *testing.T) {
	qs := BuildQueryString([]Param{P("note", "a b&c")})
	assert.Equal(t, "?note=a+b%26c", qs)
}
