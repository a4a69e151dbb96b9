package panels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/trellis/pkg/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestClientProbeSuccess(t *testing.T) {
	var gotPath, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	src := &Remote{
		BaseURL: server.URL + "/panels",
		Headers: map[string]string{"X-Api-Key": "secret"},
	}
	client := newTestClient(t)

	err := client.Probe(context.Background(), src, "row-7")
	require.NoError(t, err)
	assert.Equal(t, "/panels/row-7", gotPath)
	assert.Equal(t, "secret", gotHeader)
}

func TestClientProbeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(t)
	err := client.Probe(context.Background(), &Remote{BaseURL: server.URL}, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "404")
}

func TestClientProbeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(t)
	err := client.Probe(context.Background(), &Remote{BaseURL: server.URL}, "k")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestClientProbeRelativeBaseRejected(t *testing.T) {
	client := newTestClient(t)
	err := client.Probe(context.Background(), &Remote{BaseURL: "panels/local"}, "k")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
