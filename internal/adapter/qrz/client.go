// Package qrz resolves callsigns to coordinates through the QRZ.com XML API.
package qrz

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/observability"
)

// DefaultURL is the QRZ.com XML data endpoint.
const DefaultURL = "https://xmldata.qrz.com/xml/1.34/"

const (
	maxResponseBytes = 1 << 20
	breakerName      = "qrz-lookup"
	tripAfter        = 5
)

// Client implements domain.Lookup against the QRZ.com XML API. Credentials
// are bound at construction and sent with every request.
type Client struct {
	user       string
	password   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[domain.LookupResult]
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a QRZ.com lookup client. ratePerSecond bounds outgoing
// requests (burst 1); a non-positive value disables limiting.
func NewClient(user, password, baseURL string, timeout time.Duration, ratePerSecond float64, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	c := &Client{
		user:     user,
		password: password,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker[domain.LookupResult](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		// Only an unreachable directory counts against the breaker; answers
		// it gave, even unhelpful ones, prove it is up.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || !errors.Is(err, domain.ErrLookupTransport)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(stateToFloat(to))
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Lookup fetches the directory entry for call. Failures wrap
// domain.ErrLookupTransport or domain.ErrLookupDecode, or are a
// *domain.RemoteError when the directory itself reports a problem.
func (c *Client) Lookup(ctx context.Context, call string) (domain.LookupResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return domain.LookupResult{}, fmt.Errorf("lookup %s: rate limit: %w", call, err)
	}

	result, err := c.breaker.Execute(func() (domain.LookupResult, error) {
		return c.doRequest(ctx, call)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.LookupResult{}, fmt.Errorf("%w: lookup %s: %w", domain.ErrLookupTransport, call, err)
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, call string) (domain.LookupResult, error) {
	form := url.Values{
		"username": {c.user},
		"password": {c.password},
		"callsign": {call},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.LookupResult{}, fmt.Errorf("%w: create request: %w", domain.ErrLookupTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.LookupResult{}, fmt.Errorf("%w: lookup %s: %w", domain.ErrLookupTransport, call, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.LookupResult{}, fmt.Errorf("%w: qrz status %d: %s", domain.ErrLookupTransport, resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.LookupResult{}, fmt.Errorf("%w: read response: %w", domain.ErrLookupTransport, err)
	}

	return decodeResponse(call, body)
}

func decodeResponse(call string, body []byte) (domain.LookupResult, error) {
	var db database
	if err := xml.Unmarshal(body, &db); err != nil {
		return domain.LookupResult{}, fmt.Errorf("%w: %w", domain.ErrLookupDecode, err)
	}
	if db.Callsign == nil {
		return domain.LookupResult{}, &domain.RemoteError{Call: call, Message: strings.TrimSpace(db.Session.Error)}
	}

	result := domain.LookupResult{Call: strings.TrimSpace(db.Callsign.Call)}
	if result.Call == "" {
		result.Call = call
	}
	var err error
	if result.Latitude, err = parseCoordinate("lat", db.Callsign.Lat); err != nil {
		return domain.LookupResult{}, err
	}
	if result.Longitude, err = parseCoordinate("lon", db.Callsign.Lon); err != nil {
		return domain.LookupResult{}, err
	}
	return result, nil
}

// parseCoordinate returns nil for an absent or blank element.
func parseCoordinate(field string, raw *string) (*float64, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", domain.ErrLookupDecode, field, *raw, err)
	}
	return &v, nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// QRZ.com XML response types.

type database struct {
	XMLName  xml.Name  `xml:"QRZDatabase"`
	Callsign *callsign `xml:"Callsign"`
	Session  session   `xml:"Session"`
}

type callsign struct {
	Call string  `xml:"call"`
	Lat  *string `xml:"lat"`
	Lon  *string `xml:"lon"`
}

type session struct {
	Error string `xml:"Error"`
}
