// Package connector implements terminal transports: the real channel
// connector client and a loopback used for local runs.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"botpipe/pkg/logger"
	"botpipe/pkg/metrics"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
)

// HTTPTransport delivers outbound operations to the channel connector
// referenced by the conversation's service URL:
//
//	POST   {serviceURL}/v1/conversations/{conversation}/activities
//	PUT    {serviceURL}/v1/conversations/{conversation}/activities/{id}
//	DELETE {serviceURL}/v1/conversations/{conversation}/activities/{id}
//
// A 404 from the connector is surfaced as pipeline.ErrNotFound.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport with the given call timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func conversationURL(ref models.ConversationReference) (string, error) {
	if ref.ServiceURL == "" {
		return "", fmt.Errorf("conversation reference has no service url")
	}
	base, err := url.Parse(ref.ServiceURL)
	if err != nil {
		return "", fmt.Errorf("invalid service url: %w", err)
	}
	return base.JoinPath("v1", "conversations", ref.Conversation, "activities").String(), nil
}

func (t *HTTPTransport) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal activity: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return t.client.Do(req)
}

// Send implements pipeline.Transport. Activities post one at a time in
// the order supplied so the channel observes call order.
func (t *HTTPTransport) Send(ctx context.Context, ref models.ConversationReference, acts []*models.Activity) ([]models.ResourceResponse, error) {
	u, err := conversationURL(ref)
	if err != nil {
		return nil, err
	}
	out := make([]models.ResourceResponse, 0, len(acts))
	for _, a := range acts {
		resp, err := t.do(ctx, http.MethodPost, u, a)
		if err != nil {
			metrics.OutboundOps.WithLabelValues("send", "error").Inc()
			return nil, fmt.Errorf("connector send failed: %w", err)
		}
		rr, err := decodeResource(resp)
		if err != nil {
			metrics.OutboundOps.WithLabelValues("send", "error").Inc()
			return nil, err
		}
		metrics.OutboundOps.WithLabelValues("send", "ok").Inc()
		out = append(out, rr)
	}
	logger.Debug("connector_sent", "conversation", ref.Conversation, "count", len(out))
	return out, nil
}

// Update implements pipeline.Transport.
func (t *HTTPTransport) Update(ctx context.Context, ref models.ConversationReference, act *models.Activity) (models.ResourceResponse, error) {
	u, err := conversationURL(ref)
	if err != nil {
		return models.ResourceResponse{}, err
	}
	resp, err := t.do(ctx, http.MethodPut, u+"/"+url.PathEscape(act.ID), act)
	if err != nil {
		metrics.OutboundOps.WithLabelValues("update", "error").Inc()
		return models.ResourceResponse{}, fmt.Errorf("connector update failed: %w", err)
	}
	rr, err := decodeResource(resp)
	if err != nil {
		metrics.OutboundOps.WithLabelValues("update", "error").Inc()
		return models.ResourceResponse{}, err
	}
	metrics.OutboundOps.WithLabelValues("update", "ok").Inc()
	return rr, nil
}

// Delete implements pipeline.Transport.
func (t *HTTPTransport) Delete(ctx context.Context, ref models.ConversationReference, id string) error {
	u, err := conversationURL(ref)
	if err != nil {
		return err
	}
	resp, err := t.do(ctx, http.MethodDelete, u+"/"+url.PathEscape(id), nil)
	if err != nil {
		metrics.OutboundOps.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("connector delete failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		metrics.OutboundOps.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("activity %s: %w", id, pipeline.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		metrics.OutboundOps.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("connector delete failed: status %d", resp.StatusCode)
	}
	metrics.OutboundOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// decodeResource reads a resource descriptor from a connector response,
// consuming and closing the body.
func decodeResource(resp *http.Response) (models.ResourceResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return models.ResourceResponse{}, fmt.Errorf("connector: %w", pipeline.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ResourceResponse{}, fmt.Errorf("connector: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var rr models.ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return models.ResourceResponse{}, fmt.Errorf("connector: invalid response body: %w", err)
	}
	return rr, nil
}
