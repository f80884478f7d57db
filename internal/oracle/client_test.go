package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/config"
)

// newTestClient rigs a Client against a mock oracle server with fast polling
// and near-instant retry backoff so transport tests stay quick.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.OracleConfig{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		PollInterval:      5 * time.Millisecond,
		MaxWait:           2 * time.Second,
		TransportRetries:  2,
		RequestsPerSecond: 1000,
		MaxImageBytes:     100 * 1024,
	}
	client, err := NewClient(cfg, server.Client(), zap.NewNop())
	require.NoError(t, err)

	client.backoffFactory = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, request string) {
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "request": request})
}

func smallPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.OracleConfig{BaseURL: "https://oracle.test"}, nil, nil)
	assert.Error(t, err)
}

func TestClient_Submit(t *testing.T) {
	payload := smallPNG(t)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/in.php", r.URL.Path)
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "test-key", r.PostForm.Get("key"))
		assert.Equal(t, "base64", r.PostForm.Get("method"))
		assert.Equal(t, "1", r.PostForm.Get("coordinatescaptcha"))
		assert.Equal(t, "1", r.PostForm.Get("json"))
		assert.Equal(t, "click on all images that contain the number 667", r.PostForm.Get("textinstructions"))

		decoded, err := base64.StdEncoding.DecodeString(r.PostForm.Get("body"))
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)

		writeEnvelope(w, 1, "1029384756")
	}))

	taskID, scale, err := client.Submit(context.Background(), payload, "click on all images that contain the number 667")
	require.NoError(t, err)
	assert.Equal(t, "1029384756", taskID)
	assert.Equal(t, 1.0, scale)
}

func TestClient_Submit_ClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		code      string
		reason    FailureReason
		retryable bool
	}{
		{"ERROR_ZERO_BALANCE", ReasonZeroBalance, false},
		{"ERROR_WRONG_USER_KEY", ReasonInvalidCredential, false},
		{"ERROR_NO_SLOT_AVAILABLE", ReasonRateLimited, true},
		{"ERROR_CAPTCHA_UNSOLVABLE", ReasonUnsolvable, true},
		{"SOMETHING_NEW", ReasonUnsolvable, true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, 0, tt.code)
			}))

			_, _, err := client.Submit(context.Background(), smallPNG(t), "instruction")
			var solveErr *SolveError
			require.ErrorAs(t, err, &solveErr)
			assert.Equal(t, tt.reason, solveErr.Reason)
			assert.Equal(t, tt.code, solveErr.Code)
			assert.Equal(t, tt.retryable, solveErr.Retryable())
		})
	}
}

func TestClient_Poll(t *testing.T) {
	t.Run("NotReady", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 0, "CAPCHA_NOT_READY")
		}))

		_, err := client.Poll(context.Background(), "42")
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("Answer", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/res.php", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "get", q.Get("action"))
			assert.Equal(t, "42", q.Get("id"))
			assert.Equal(t, "1", q.Get("json"))
			writeEnvelope(w, 1, "coordinates:x=50,y=50;x=120,y=50")
		}))

		points, err := client.Poll(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, []schemas.ImagePoint{{X: 50, Y: 50}, {X: 120, Y: 50}}, points)
	})

	t.Run("TaskError", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 0, "ERROR_WRONG_CAPTCHA_ID")
		}))

		_, err := client.Poll(context.Background(), "42")
		var solveErr *SolveError
		require.ErrorAs(t, err, &solveErr)
		assert.Equal(t, ReasonMalformed, solveErr.Reason)
	})
}

// The canonical slow-oracle run: five not-ready polls, then the answer. The
// solve must ride them out and return the parsed coordinates.
func TestClient_Solve_PendingThenAnswer(t *testing.T) {
	var polls atomic.Int32

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			writeEnvelope(w, 1, "77")
			return
		}
		if polls.Add(1) <= 5 {
			writeEnvelope(w, 0, "CAPCHA_NOT_READY")
			return
		}
		writeEnvelope(w, 1, "50,50|120,50|190,120")
	}))

	set, err := client.Solve(context.Background(), schemas.ChallengeImage{PNG: smallPNG(t)}, "instruction")
	require.NoError(t, err)

	assert.EqualValues(t, 6, polls.Load())
	require.Len(t, set, 3)
	assert.Equal(t, schemas.ImagePoint{X: 50, Y: 50}, set[0].Point)
	assert.Equal(t, schemas.ImagePoint{X: 120, Y: 50}, set[1].Point)
	assert.Equal(t, schemas.ImagePoint{X: 190, Y: 120}, set[2].Point)
	for _, c := range set {
		assert.Equal(t, schemas.ProvenanceOracle, c.Provenance)
	}
}

func TestClient_Solve_GivesUpAfterMaxWait(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			writeEnvelope(w, 1, "77")
			return
		}
		writeEnvelope(w, 0, "CAPCHA_NOT_READY")
	}))
	client.cfg.MaxWait = 30 * time.Millisecond

	_, err := client.Solve(context.Background(), schemas.ChallengeImage{PNG: smallPNG(t)}, "instruction")
	var solveErr *SolveError
	require.ErrorAs(t, err, &solveErr)
	assert.Equal(t, ReasonTimeout, solveErr.Reason)
	assert.True(t, solveErr.Retryable())
}

func TestClient_Balance(t *testing.T) {
	t.Run("Parses", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "getbalance", r.URL.Query().Get("action"))
			writeEnvelope(w, 1, "42.50")
		}))

		balance, err := client.Balance(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42.5, balance)
	})

	t.Run("Unparseable", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 1, "half a credit")
		}))

		_, err := client.Balance(context.Background())
		var solveErr *SolveError
		require.ErrorAs(t, err, &solveErr)
		assert.Equal(t, ReasonMalformed, solveErr.Reason)
	})
}

func TestClient_RetriesTransientHTTPErrors(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream sad", http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, 1, "3.00")
	}))

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, balance)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such endpoint", http.StatusNotFound)
	}))

	_, err := client.Balance(context.Background())
	var solveErr *SolveError
	require.ErrorAs(t, err, &solveErr)
	assert.Equal(t, ReasonTransport, solveErr.Reason)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_UndecodableEnvelope(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html>definitely not json</html>"))
	}))

	_, err := client.Balance(context.Background())
	var solveErr *SolveError
	require.ErrorAs(t, err, &solveErr)
	assert.Equal(t, ReasonMalformed, solveErr.Reason)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_CancellationIsNotASolveError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 1, "1.00")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Balance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var solveErr *SolveError
	assert.False(t, errors.As(err, &solveErr))
}

func TestClient_DeadlineBecomesTimeoutFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		writeEnvelope(w, 1, "1.00")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Balance(ctx)
	var solveErr *SolveError
	require.ErrorAs(t, err, &solveErr)
	assert.Equal(t, ReasonTimeout, solveErr.Reason)
}

func TestToSolutionSet_RescalesToSourcePixels(t *testing.T) {
	points := []schemas.ImagePoint{{X: 100, Y: 60}, {X: 33, Y: 67}}

	set := toSolutionSet(points, 0.5)
	require.Len(t, set, 2)
	assert.Equal(t, schemas.ImagePoint{X: 200, Y: 120}, set[0].Point)
	assert.Equal(t, schemas.ImagePoint{X: 66, Y: 134}, set[1].Point)

	// Scale 1 and the degenerate zero scale leave coordinates untouched.
	assert.Equal(t, schemas.ImagePoint{X: 100, Y: 60}, toSolutionSet(points, 1.0)[0].Point)
	assert.Equal(t, schemas.ImagePoint{X: 100, Y: 60}, toSolutionSet(points, 0)[0].Point)
}
