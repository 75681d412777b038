package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFipeLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getplacafipe/ABC1D23/test-token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"codigo":1,"placa":"ABC1D23","marca":"Fiat","modelo":"Argo"}`))
	}))
	defer srv.Close()

	c := NewFipeClient(srv.URL, "test-token")

	data, err := c.Lookup(context.Background(), "ABC1D23")
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "Fiat", parsed["marca"])
}

func TestFipeLookup_InBandRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"codigo":0,"mensagem":"Placa nao encontrada"}`))
	}))
	defer srv.Close()

	c := NewFipeClient(srv.URL, "test-token")

	_, err := c.Lookup(context.Background(), "ZZZ9Z99")

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Placa nao encontrada", rejected.Reason)
}

func TestFipeLookup_ClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"erro":"token invalido"}`))
	}))
	defer srv.Close()

	c := NewFipeClient(srv.URL, "bad-token")

	_, err := c.Lookup(context.Background(), "ABC1D23")

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestFipeLookup_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewFipeClient(srv.URL, "test-token")

	_, err := c.Lookup(context.Background(), "ABC1D23")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestFipeLookup_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewFipeClient(srv.URL, "test-token")

	_, err := c.Lookup(context.Background(), "ABC1D23")
	require.ErrorIs(t, err, ErrUnavailable)
}
