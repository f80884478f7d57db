package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "the quick brown fox jumps over the lazy dog, twice over"

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func brotliBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func rawDeflateBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// roundTrip fetches the server's response through the middleware-wrapped
// client and returns the (decompressed) body.
func roundTrip(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewAPIClient(0)
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, resp.Uncompressed || resp.Header.Get("Content-Encoding") == "")
	return string(body)
}

func TestCompressionMiddleware_AdvertisesEncodings(t *testing.T) {
	var seen string
	roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Accept-Encoding")
		_, _ = io.WriteString(w, payload)
	})
	assert.Equal(t, "br, gzip, deflate, identity", seen)
}

func TestCompressionMiddleware_RoundTrips(t *testing.T) {
	cases := []struct {
		name     string
		encoding string
		body     func(*testing.T, string) []byte
	}{
		{"Gzip", "gzip", gzipBytes},
		{"Brotli", "br", brotliBytes},
		{"DeflateZlib", "deflate", zlibBytes},
		{"DeflateRaw", "deflate", rawDeflateBytes},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tc.encoding)
				_, _ = w.Write(tc.body(t, payload))
			})
			assert.Equal(t, payload, got)
		})
	}
}

func TestCompressionMiddleware_Identity(t *testing.T) {
	got := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "identity")
		_, _ = io.WriteString(w, payload)
	})
	assert.Equal(t, payload, got)
}

func TestCompressionMiddleware_LayeredEncoding(t *testing.T) {
	// gzip applied over deflate; decode must run in reverse order.
	inner := rawDeflateBytes(t, payload)
	outer := gzipBytes(t, string(inner))

	got := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Encoding", "deflate")
		w.Header().Add("Content-Encoding", "gzip")
		_, _ = w.Write(outer)
	})
	assert.Equal(t, payload, got)
}

func TestCompressionMiddleware_UnsupportedEncoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(server.Close)

	_, err := NewAPIClient(0).Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Content-Encoding")
}

func TestCompressionMiddleware_CorruptGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = io.WriteString(w, "definitely not gzip")
	}))
	t.Cleanup(server.Close)

	_, err := NewAPIClient(0).Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip initialization error")
}

func TestDecompressResponse_NilSafe(t *testing.T) {
	assert.NoError(t, DecompressResponse(nil))
	assert.NoError(t, DecompressResponse(&http.Response{}))
}

// Pooled readers must survive reuse across sequential requests.
func TestCompressionMiddleware_PoolReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(gzipBytes(t, payload))
	}))
	t.Cleanup(server.Close)

	client := NewAPIClient(0)
	for i := 0; i < 5; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, payload, string(body))
	}
}
