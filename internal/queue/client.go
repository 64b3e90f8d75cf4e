package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/order-event-pipeline/internal/event"
)

// BatchCeiling is the provider limit on messages per batch publish call.
const BatchCeiling = 100

// Headers mirrored onto every publish call so consumers and the queue can
// inspect messages without parsing the body.
const (
	HeaderEventID       = "X-Event-Id"
	HeaderEventType     = "X-Event-Type"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderSchemaVersion = "X-Schema-Version"
	HeaderSource        = "X-Event-Source"
	HeaderRetries       = "X-Queue-Retries"
	HeaderDelay         = "X-Queue-Delay-Ms"
)

// Options carries transport-level delivery settings for a publish call.
type Options struct {
	Retries int           // redelivery attempts the queue should make, default 3
	Delay   time.Duration // scheduled-delivery delay, default 0
}

// Doer is the subset of http.Client the publisher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client publishes envelopes to the message queue's HTTP publish API for
// at-least-once delivery to a target URL. It is safe for concurrent use and
// safe to call repeatedly with the same envelope id: the id rides along
// unchanged, so the receiver's deduplication decision is unaffected.
type Client struct {
	httpClient     Doer
	publishURL     string // per-message publish endpoint
	batchURL       string // optional batch endpoint; empty means sequential fallback
	token          string
	defaultRetries int
}

// NewClient returns a publisher bound to the queue's publish API. batchURL
// may be empty when the transport has no native batching.
func NewClient(httpClient Doer, publishURL, batchURL, token string, defaultRetries int) *Client {
	if defaultRetries <= 0 {
		defaultRetries = 3
	}
	return &Client{
		httpClient:     httpClient,
		publishURL:     strings.TrimRight(publishURL, "/"),
		batchURL:       strings.TrimRight(batchURL, "/"),
		token:          token,
		defaultRetries: defaultRetries,
	}
}

// Publish hands env to the queue for delivery to target. A non-2xx response
// from the publish API is surfaced as an error; the caller decides whether
// that fails the surrounding operation or is logged as best-effort.
func (c *Client) Publish(ctx context.Context, target string, env event.Envelope, opts Options) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", env.ID, err)
	}

	url := c.publishURL + "/" + strings.TrimLeft(target, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	c.setHeaders(req, env, opts)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Type, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("publish %s to %s: queue returned %d: %s", env.Type, target, resp.StatusCode, snippet)
	}
	return nil
}

// PublishBatch publishes up to BatchCeiling envelopes per batch call,
// chunking larger slices. Without a configured batch endpoint it falls back
// to sequential per-message publishes; that is a supported mode, not an
// error. Per-message retry/delay options are preserved either way.
func (c *Client) PublishBatch(ctx context.Context, target string, envs []event.Envelope, opts Options) error {
	if len(envs) == 0 {
		return nil
	}
	if c.batchURL == "" {
		for _, env := range envs {
			if err := c.Publish(ctx, target, env, opts); err != nil {
				return err
			}
		}
		return nil
	}
	for start := 0; start < len(envs); start += BatchCeiling {
		end := start + BatchCeiling
		if end > len(envs) {
			end = len(envs)
		}
		if err := c.publishChunk(ctx, target, envs[start:end], opts); err != nil {
			return err
		}
	}
	return nil
}

type batchEntry struct {
	Envelope event.Envelope `json:"envelope"`
	Retries  int            `json:"retries"`
	DelayMs  int64          `json:"delayMs"`
}

func (c *Client) publishChunk(ctx context.Context, target string, envs []event.Envelope, opts Options) error {
	entries := make([]batchEntry, 0, len(envs))
	for _, env := range envs {
		entries = append(entries, batchEntry{
			Envelope: env,
			Retries:  c.retries(opts),
			DelayMs:  opts.Delay.Milliseconds(),
		})
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	url := c.batchURL + "/" + strings.TrimLeft(target, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("batch publish to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("batch publish to %s: queue returned %d: %s", target, resp.StatusCode, snippet)
	}
	log.Ctx(ctx).Debug().Int("count", len(envs)).Str("target", target).Msg("batch published")
	return nil
}

func (c *Client) setHeaders(req *http.Request, env event.Envelope, opts Options) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(HeaderEventID, env.ID)
	req.Header.Set(HeaderEventType, env.Type)
	req.Header.Set(HeaderSchemaVersion, env.SchemaVersion)
	req.Header.Set(HeaderSource, env.Source)
	if env.CorrelationID != "" {
		req.Header.Set(HeaderCorrelationID, env.CorrelationID)
	}
	req.Header.Set(HeaderRetries, strconv.Itoa(c.retries(opts)))
	if opts.Delay > 0 {
		req.Header.Set(HeaderDelay, strconv.FormatInt(opts.Delay.Milliseconds(), 10))
	}
}

func (c *Client) retries(opts Options) int {
	if opts.Retries > 0 {
		return opts.Retries
	}
	return c.defaultRetries
}
