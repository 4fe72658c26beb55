// Package queue dispatches document processing tasks. Every backend delivers
// the same thing: an HTTP POST of a small JSON payload to the callback URL,
// retried by the backend until the callback answers 2xx or a permanent 4xx.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

// ErrPermanent marks a delivery the receiver rejected for good.
var ErrPermanent = errors.New("permanent delivery failure")

// Payload is the task body sent to the processing callback.
type Payload struct {
	DocumentID string `json:"document_id"`
}

// Delivery is one HTTP callback, ready to send.
type Delivery struct {
	URL     string            `json:"url"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Dispatcher enqueues a processing callback and returns a backend handle.
type Dispatcher interface {
	Enqueue(ctx context.Context, targetURL string, payload Payload) (string, error)
}

// Deliverer sends a single delivery.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// NewDelivery encodes payload for targetURL, signing the body when signer is
// enabled.
func NewDelivery(targetURL string, payload Payload, signer *signing.Signer) (Delivery, error) {
	if payload.DocumentID == "" {
		return Delivery{}, model.E(model.ErrValidation, "build delivery", errors.New("document id is empty"))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, model.E(model.ErrDispatch, "build delivery", fmt.Errorf("marshal payload: %w", err))
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range signer.Headers(body) {
		headers[k] = v
	}
	return Delivery{URL: targetURL, Body: body, Headers: headers}, nil
}

// HTTPDeliverer posts deliveries with a plain HTTP client.
type HTTPDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer wraps client; nil selects a client with a 15 minute
// timeout, long enough for a conversion to finish.
func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	return &HTTPDeliverer{client: client}
}

// Deliver posts d. 2xx is success, other 4xx (except 408 and 429) wrap
// ErrPermanent, and anything else is retryable.
func (h *HTTPDeliverer) Deliver(ctx context.Context, d Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", d.URL, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return fmt.Errorf("post %s: status %d", d.URL, code)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: post %s: status %d: %s", ErrPermanent, d.URL, code, bytes.TrimSpace(snippet))
	default:
		return fmt.Errorf("post %s: status %d: %s", d.URL, code, bytes.TrimSpace(snippet))
	}
}
