package fxservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/infrastructure/metrics"
)

// Client looks up point-in-time FX rates from the platform's rate service
// over HTTP. It implements usecase.RateService.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Config for the FX service client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewClient creates a new FX service client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

type rateResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Date string          `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// LookupRate fetches the conversion rate between two currencies as of the
// given time. Transient failures are retried with exponential backoff.
func (c *Client) LookupRate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	start := time.Now()

	var rate decimal.Decimal
	operation := func() error {
		r, err := c.fetchRate(ctx, from, to, at)
		if err != nil {
			return err
		}
		rate = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))

	if c.metrics != nil {
		c.metrics.FxLookups.WithLabelValues("live").Inc()
		c.metrics.FxDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.FxErrors.Inc()
		}
	}
	if err != nil {
		return decimal.Zero, err
	}

	return rate, nil
}

func (c *Client) fetchRate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/rates?%s", c.baseURL, url.Values{
		"from": {from},
		"to":   {to},
		"date": {at.UTC().Format("2006-01-02")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, backoff.Permanent(fmt.Errorf("no rate published for %s/%s on %s", from, to, at.UTC().Format("2006-01-02")))
	case resp.StatusCode >= 500:
		return decimal.Zero, fmt.Errorf("rate service returned %d", resp.StatusCode)
	default:
		return decimal.Zero, backoff.Permanent(fmt.Errorf("rate service returned %d", resp.StatusCode))
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("decoding rate response: %w", err))
	}

	if body.Rate.IsZero() || body.Rate.IsNegative() {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("rate service returned non-positive rate %s for %s/%s", body.Rate, from, to))
	}

	c.logger.Debug().
		Str("from", from).
		Str("to", to).
		Str("rate", body.Rate.String()).
		Msg("fetched fx rate")

	return body.Rate, nil
}
