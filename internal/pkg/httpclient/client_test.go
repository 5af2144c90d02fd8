package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestPostJSON(t *testing.T) {
	var got map[string]string
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(otel.Tracer("test"))
	err := c.PostJSON(context.Background(), srv.URL+"/hook", map[string]string{"type": "order.placed"},
		map[string]string{"X-Signature": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "order.placed", got["type"])
	assert.Equal(t, "abc", sig)
}

func TestPostJSON_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(otel.Tracer("test")).PostJSON(context.Background(), srv.URL, struct{}{}, nil)
	assert.Error(t, err)
}
