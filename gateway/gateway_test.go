package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/recordcache/pkg/tlsutil"
)

func TestGateway_Lifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	g, err := New(Config{Addr: "127.0.0.1:0"}, handler, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, g.Addr())
	assert.NoError(t, g.Stop(time.Second), "stop before start is a no-op")

	require.NoError(t, g.Start(context.Background()))
	assert.Error(t, g.Start(context.Background()))

	resp, err := http.Get("http://" + g.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	require.NoError(t, g.Stop(time.Second))
	select {
	case err := <-g.Done():
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not exit")
	}
}

func TestGateway_Validation(t *testing.T) {
	_, err := New(Config{}, http.NotFoundHandler(), discardLogger())
	assert.Error(t, err)

	_, err = New(Config{Addr: ":0", TLS: tlsutil.ServerConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"}},
		http.NotFoundHandler(), discardLogger())
	assert.Error(t, err)
}
