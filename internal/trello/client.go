// Package trello is a minimal Trello REST client: it creates cards on one
// list and nothing else.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseURL = "https://api.trello.com"

var (
	// ErrNotConfigured means list id, key or token is missing. No request is made.
	ErrNotConfigured = errors.New("trello: client not configured")
	// ErrMissingShortURL means Trello answered 2xx without a shortUrl.
	ErrMissingShortURL = errors.New("trello: response has no shortUrl")
)

// APIError is a non-2xx answer from Trello.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("trello: status %d", e.StatusCode)
	}
	return fmt.Sprintf("trello: status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL string
	ListID  string
	Key     string
	Token   string
	// Timeout bounds one request. Zero leaves it to ctx and the transport.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Card is the subset of Trello's card object the bot reads.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShortURL string `json:"shortUrl"`
	URL      string `json:"url"`
}

type Client struct {
	base   string
	listID string
	key    string
	token  string
	http   *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		base:   base,
		listID: strings.TrimSpace(cfg.ListID),
		key:    strings.TrimSpace(cfg.Key),
		token:  strings.TrimSpace(cfg.Token),
		http:   hc,
	}
}

// Configured reports whether list id, key and token are all present.
func (c *Client) Configured() bool {
	return c != nil && c.listID != "" && c.key != "" && c.token != ""
}

const maxErrBody = 512

// CreateCard posts one card to the configured list. It never retries.
func (c *Client) CreateCard(ctx context.Context, name, desc string) (card *Card, err error) {
	ctx, span := otel.Tracer("shiftbot/trello").Start(ctx, "trello.create_card",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("trello.card.name", name)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("idList", c.listID)
	q.Set("key", c.key)
	q.Set("token", c.token)
	endpoint := c.base + "/1/cards?" + q.Encode()

	form := url.Values{}
	form.Set("name", name)
	form.Set("desc", desc)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("trello: build request: %s", c.redact(err.Error()))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full URL including key and token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, fmt.Errorf("trello: post card: %w", &url.Error{Op: uerr.Op, URL: c.redact(uerr.URL), Err: uerr.Err})
		}
		return nil, fmt.Errorf("trello: post card: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: c.redact(strings.TrimSpace(string(b)))}
	}

	var out Card
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("trello: decode card: %w", err)
	}
	if strings.TrimSpace(out.ShortURL) == "" {
		return nil, ErrMissingShortURL
	}
	span.SetAttributes(attribute.String("trello.card.id", out.ID))
	return &out, nil
}

func (c *Client) redact(s string) string {
	for _, secret := range []string{c.key, c.token} {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "REDACTED")
		}
	}
	return s
}
