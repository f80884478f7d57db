// Package oracle implements the client for a 2captcha-compatible coordinate
// solving service: challenges go up as base64 PNGs with a text instruction,
// answers come back as pixel coordinates after polling.
package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/network"
)

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Status    int    `json:"status"`
	Request   string `json:"request"`
	ErrorText string `json:"error_text,omitempty"`
}

// Client talks to the coordinate oracle. All requests flow through one rate
// limiter to stay a polite API citizen, and transport failures retry with
// exponential backoff up to the configured budget.
type Client struct {
	cfg        config.OracleConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	// backoffFactory is swappable in tests to avoid real retry waits.
	backoffFactory func() backoff.BackOff
}

// NewClient constructs a Client. A nil httpClient gets the standard API
// client with the configured request timeout.
func NewClient(cfg config.OracleConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = network.NewAPIClient(0)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.Named("oracle"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}, nil
}

// Submit uploads a challenge image and returns the oracle's task id together
// with the scale factor applied while bounding the image. Coordinates in the
// eventual answer divide by that factor to recover source pixels.
func (c *Client) Submit(ctx context.Context, png []byte, instruction string) (string, float64, error) {
	bounded, scale, err := BoundImage(png, c.cfg.MaxImageBytes)
	if err != nil {
		return "", 0, &SolveError{Reason: ReasonMalformed, Detail: err.Error()}
	}

	form := url.Values{}
	form.Set("key", c.cfg.APIKey)
	form.Set("method", "base64")
	form.Set("coordinatescaptcha", "1")
	form.Set("textinstructions", instruction)
	form.Set("json", "1")
	form.Set("body", base64.StdEncoding.EncodeToString(bounded))

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/in.php", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", 0, err
	}
	if resp.Status != 1 {
		return "", 0, newAPIError(resp.Request, resp.ErrorText)
	}

	c.logger.Info("Challenge submitted to oracle",
		zap.String("task_id", resp.Request),
		zap.Int("payload_bytes", len(bounded)),
		zap.Float64("scale", scale),
	)
	return resp.Request, scale, nil
}

// Poll fetches the answer for a task. ErrNotReady means ask again later;
// every other error is terminal for the task.
func (c *Client) Poll(ctx context.Context, taskID string) ([]schemas.ImagePoint, error) {
	resp, err := c.get(ctx, url.Values{
		"key":    {c.cfg.APIKey},
		"action": {"get"},
		"id":     {taskID},
		"json":   {"1"},
	})
	if err != nil {
		return nil, err
	}

	if resp.Status == 1 {
		return ParseAnswer(resp.Request)
	}
	if resp.Request == "CAPCHA_NOT_READY" {
		return nil, ErrNotReady
	}
	return nil, newAPIError(resp.Request, resp.ErrorText)
}

// Solve runs the full submit-poll cycle for a challenge image and returns
// the answered coordinates in source image pixels, each tagged as
// oracle-proposed. The poll loop gives up after the configured max wait.
func (c *Client) Solve(ctx context.Context, img schemas.ChallengeImage, instruction string) (schemas.SolutionSet, error) {
	taskID, scale, err := c.Submit(ctx, img.PNG, instruction)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.MaxWait)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, c.classifyContextErr(ctx.Err(), taskID)
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, &SolveError{
				Reason: ReasonTimeout,
				Detail: fmt.Sprintf("task %s unanswered after %s", taskID, c.cfg.MaxWait),
			}
		}

		points, err := c.Poll(ctx, taskID)
		if errors.Is(err, ErrNotReady) {
			c.logger.Debug("Oracle answer not ready", zap.String("task_id", taskID))
			continue
		}
		if err != nil {
			return nil, err
		}

		c.logger.Info("Oracle answered",
			zap.String("task_id", taskID),
			zap.Int("points", len(points)),
		)
		return toSolutionSet(points, scale), nil
	}
}

// Balance fetches the remaining account funds.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	resp, err := c.get(ctx, url.Values{
		"key":    {c.cfg.APIKey},
		"action": {"getbalance"},
		"json":   {"1"},
	})
	if err != nil {
		return 0, err
	}
	if resp.Status != 1 {
		return 0, newAPIError(resp.Request, resp.ErrorText)
	}

	balance, err := strconv.ParseFloat(strings.TrimSpace(resp.Request), 64)
	if err != nil {
		return 0, &SolveError{
			Reason: ReasonMalformed,
			Detail: fmt.Sprintf("unparseable balance %q", resp.Request),
		}
	}
	return balance, nil
}

func (c *Client) get(ctx context.Context, query url.Values) (*apiResponse, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.BaseURL+"/res.php?"+query.Encode(), nil)
	})
}

// do executes one logical API call with rate limiting and transport-level
// retries. API envelopes always return with a nil error; only transport and
// decoding failures error out.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*apiResponse, error) {
	var out apiResponse

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := build()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Oracle transport error, retrying...", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(&SolveError{
				Reason: ReasonTransport,
				Detail: err.Error(),
			})
		}

		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(&SolveError{
				Reason: ReasonMalformed,
				Detail: fmt.Sprintf("undecodable envelope: %v", err),
			})
		}
		return nil
	}

	b := backoff.WithMaxRetries(c.backoffFactory(), uint64(c.cfg.TransportRetries))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		var solveErr *SolveError
		if errors.As(err, &solveErr) {
			return nil, solveErr
		}
		if ctx.Err() != nil {
			return nil, c.classifyContextErr(ctx.Err(), "")
		}
		return nil, &SolveError{Reason: ReasonTransport, Detail: err.Error()}
	}
	return &out, nil
}

// classifyContextErr keeps cancellation distinct from deadline expiry:
// deadlines are a solve failure, cancellation belongs to the caller.
func (c *Client) classifyContextErr(err error, taskID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		detail := "context deadline exceeded"
		if taskID != "" {
			detail = fmt.Sprintf("task %s: %s", taskID, detail)
		}
		return &SolveError{Reason: ReasonTimeout, Detail: detail}
	}
	return err
}

func toSolutionSet(points []schemas.ImagePoint, scale float64) schemas.SolutionSet {
	set := make(schemas.SolutionSet, 0, len(points))
	for _, p := range points {
		if scale > 0 && scale != 1.0 {
			p = schemas.ImagePoint{
				X: int(math.Round(float64(p.X) / scale)),
				Y: int(math.Round(float64(p.Y) / scale)),
			}
		}
		set = append(set, schemas.CandidateCoordinate{
			Point:      p,
			Provenance: schemas.ProvenanceOracle,
		})
	}
	return set
}
