// ABOUTME: HTTP broker client publishing envelopes to a pubsub sidecar
// ABOUTME: POSTs CloudEvents JSON to the sidecar's publish endpoint

package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// cloudEventsContentType marks the request body as a structured CloudEvent
// so the sidecar forwards the envelope as-is instead of wrapping it.
const cloudEventsContentType = "application/cloudevents+json"

// HTTPBroker publishes envelopes over the pubsub sidecar's HTTP API
// ({base}/v1.0/publish/{pubsub}/{topic}).
type HTTPBroker struct {
	publishURL string
	client     *http.Client
}

// NewHTTPBroker creates a broker client for the given sidecar base URL,
// pubsub component, and topic.
func NewHTTPBroker(baseURL, pubsub, topic string) *HTTPBroker {
	return &HTTPBroker{
		publishURL: fmt.Sprintf("%s/v1.0/publish/%s/%s", strings.TrimRight(baseURL, "/"), pubsub, topic),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Publish sends the envelope to the broker. The caller's context bounds the
// request; any transport or non-2xx failure is returned for the publisher
// to log and swallow.
func (b *HTTPBroker) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.publishURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", cloudEventsContentType)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending to broker: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("broker returned status %d", resp.StatusCode)
	}
	return nil
}
