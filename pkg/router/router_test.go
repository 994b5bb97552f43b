package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scalping  = "https://discord.com/api/webhooks/1/scalping"
	algoritmo = "https://discord.com/api/webhooks/2/algoritmo"
	fallback  = "https://discord.com/api/webhooks/9/default"
)

func newTestRouter(t *testing.T, def string) *Router {
	t.Helper()
	r, err := New([]Route{
		{Tag: "SCALPING", Endpoint: scalping},
		{Tag: "#ALGORITMO", Endpoint: algoritmo},
		{Tag: "SWING", Endpoint: ""},
	}, def)
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newTestRouter(t, fallback)

	tests := []struct {
		name     string
		text     string
		endpoint string
		tag      string
	}{
		{"hash tag", "#SCALPING rest of message", scalping, "SCALPING"},
		{"standalone word", "new SCALPING setup", scalping, "SCALPING"},
		{"case insensitive", "#algoritmo hello", algoritmo, "ALGORITMO"},
		{"inside markdown", "**#ALGORITMO** hello", algoritmo, "ALGORITMO"},
		{"end of text", "entry now #scalping", scalping, "SCALPING"},
		{"partial word does not match", "SCALPINGS are fun", fallback, ""},
		{"prefix glued to word does not match", "xSCALPING", fallback, ""},
		{"no tag falls back", "nothing to see", fallback, ""},
		{"blank endpoint falls back", "#SWING trade", fallback, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, tag, ok := r.Resolve(tt.text)
			assert.True(t, ok)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestResolve_FirstDeclaredWins(t *testing.T) {
	r := newTestRouter(t, fallback)

	endpoint, tag, ok := r.Resolve("#ALGORITMO and also #SCALPING")
	assert.True(t, ok)
	assert.Equal(t, scalping, endpoint, "list order decides, not text order")
	assert.Equal(t, "SCALPING", tag)
}

func TestResolve_NoDefault(t *testing.T) {
	r := newTestRouter(t, "")

	endpoint, _, ok := r.Resolve("plain message")
	assert.False(t, ok)
	assert.Empty(t, endpoint)

	_, _, ok = r.Resolve("#SWING blank endpoint and no default")
	assert.False(t, ok)
}

func TestUpdate(t *testing.T) {
	r := newTestRouter(t, fallback)

	require.NoError(t, r.Update([]Route{{Tag: "SWING", Endpoint: algoritmo}}, ""))

	endpoint, _, ok := r.Resolve("#SWING")
	assert.True(t, ok)
	assert.Equal(t, algoritmo, endpoint)

	_, _, ok = r.Resolve("#SCALPING")
	assert.False(t, ok)
}

func TestUpdate_RejectsBadTables(t *testing.T) {
	r := newTestRouter(t, fallback)

	assert.Error(t, r.Update([]Route{{Tag: ""}}, ""))
	assert.Error(t, r.Update([]Route{{Tag: "A", Endpoint: scalping}, {Tag: "#a", Endpoint: algoritmo}}, ""))

	endpoint, _, _ := r.Resolve("#SCALPING")
	assert.Equal(t, scalping, endpoint, "failed update keeps previous table")
}

func TestEndpoints(t *testing.T) {
	r := newTestRouter(t, fallback)
	assert.Equal(t, []string{scalping, algoritmo, fallback}, r.Endpoints())
}
