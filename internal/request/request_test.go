package request

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"benchmark-verifier/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResponseHeaders_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Server", "test")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	m := verification.NewMessages(server.URL)
	resp, err := NewClient(time.Second).GetResponseHeaders(context.Background(), server.URL, m)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(2), resp.ContentLength)
	assert.Empty(t, m.Findings())
	assert.Equal(t, int64(1), m.Latency().Count)
}

func TestGetResponseHeaders_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	m := verification.NewMessages(url)
	_, err := NewClient(time.Second).GetResponseHeaders(context.Background(), url, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, verification.ErrConnectivity)
	assert.Len(t, m.Findings(), 1)
	assert.Equal(t, 1, m.Count(verification.SeverityError))
}

func TestGetResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("count") == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
		}
		w.Write([]byte(`[{"id":1,"randomNumber":1}]`))
	}))
	defer server.Close()

	c := NewClient(time.Second)

	m := verification.NewMessages(server.URL)
	body, ok := c.GetResponseBody(context.Background(), server.URL+"?count=1", m)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":1,"randomNumber":1}]`, string(body))
	assert.Empty(t, m.Findings())

	body, ok = c.GetResponseBody(context.Background(), server.URL+"?count=bad", m)
	assert.True(t, ok)
	assert.NotEmpty(t, body)
	assert.Equal(t, 1, m.Count(verification.SeverityWarning))
}

func TestGetResponseBody_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	m := verification.NewMessages(server.URL)
	_, ok := NewClient(50*time.Millisecond).GetResponseBody(context.Background(), server.URL, m)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count(verification.SeverityError))
}

func TestHammer(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1)%5 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	failed := NewClient(time.Second).Hammer(context.Background(), server.URL, 20, 4)
	assert.Equal(t, int64(20), hits.Load())
	assert.Equal(t, 4, failed)
}

func TestGetResponseHeaders_KeepsContentLengthOfCompressibleResponse(t *testing.T) {
	const payload = `[{"id":1,"randomNumber":1}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := []byte(payload)
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			zw.Write(body)
			zw.Close()
			body = buf.Bytes()
			w.Header().Set("Content-Encoding", "gzip")
		}
		w.Header().Set("Server", "test")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer server.Close()

	m := verification.NewMessages(server.URL)
	resp, err := NewClient(time.Second).GetResponseHeaders(context.Background(), server.URL, m)
	require.NoError(t, err)

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, int64(len(payload)), resp.ContentLength)

	verification.VerifyHeaders(resp, server.URL, verification.ContentTypeJSON, m)
	assert.True(t, m.Passed(), "%+v", m.Findings())
}
