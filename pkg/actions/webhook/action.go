// Package webhook implements the outbound HTTP call node.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/models"
)

const defaultTimeoutSeconds = 30

// Handler posts a lead payload to a user-configured HTTPS endpoint. A
// non-HTTPS target is rejected as an invalid configuration before any
// network I/O. Only GET and POST are supported; the per-call timeout bounds
// the request so one slow endpoint cannot stall unrelated runs.
type Handler struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the handler.
type Option func(*Handler)

// WithClient overrides the HTTP client, mainly for tests.
func WithClient(client *http.Client) Option {
	return func(h *Handler) {
		h.client = client
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a webhook handler.
func NewHandler(logger *slog.Logger, opts ...Option) *Handler {
	handler := &Handler{
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger: logger.With("module", "webhook_action"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeWebhook
}

func (h *Handler) Execute(ctx context.Context, run actions.RunContext, node *models.Node, lead *models.Lead) (actions.Outcome, error) {
	if err := actions.InvalidDataError(node.Data); err != nil {
		return actions.Outcome{}, err
	}

	data, ok := node.Data.(models.WebhookData)
	if !ok {
		return actions.Outcome{}, fmt.Errorf("node %s carries no webhook data: %w", node.ID, actions.ErrConfiguration)
	}

	method, err := validate(data)
	if err != nil {
		return actions.Outcome{}, err
	}

	payload, err := json.Marshal(h.buildPayload(run, data, lead))
	if err != nil {
		return actions.Outcome{}, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, data.URL, body)
	if err != nil {
		return actions.Outcome{}, fmt.Errorf("invalid webhook request: %v: %w", err, actions.ErrConfiguration)
	}

	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return actions.Outcome{}, fmt.Errorf("webhook call to %s failed: %v: %w", data.URL, err, actions.ErrTransport)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to close webhook response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return actions.Outcome{}, fmt.Errorf("webhook returned status %d: %w", resp.StatusCode, actions.ErrTransport)
	}

	h.logger.InfoContext(ctx, "Webhook delivered",
		"lead_id", lead.ID,
		"url", data.URL,
		"status", resp.StatusCode,
	)

	return actions.Outcome{
		Success: true,
		Message: fmt.Sprintf("webhook %s returned %d", data.URL, resp.StatusCode),
	}, nil
}

// validate checks the node configuration and returns the normalized method.
func validate(data models.WebhookData) (string, error) {
	if strings.TrimSpace(data.URL) == "" {
		return "", fmt.Errorf("missing webhook url: %w", actions.ErrConfiguration)
	}

	parsed, err := url.Parse(data.URL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url %q: %w", data.URL, actions.ErrConfiguration)
	}

	if parsed.Scheme != "https" {
		return "", fmt.Errorf("webhook url %q must use https: %w", data.URL, actions.ErrConfiguration)
	}

	method := strings.ToUpper(data.Method)
	if method == "" {
		method = http.MethodPost
	}

	if method != http.MethodGet && method != http.MethodPost {
		return "", fmt.Errorf("unsupported webhook method %q: %w", data.Method, actions.ErrConfiguration)
	}

	return method, nil
}

// buildPayload serializes either the full lead snapshot plus the tag
// projection, or the caller-selected field subset. Flow id and execution
// timestamp are always attached.
func (h *Handler) buildPayload(run actions.RunContext, data models.WebhookData, lead *models.Lead) map[string]any {
	payload := map[string]any{
		"flow_id":     run.FlowID,
		"executed_at": h.now().UTC().Format(time.RFC3339),
	}

	if len(data.Fields) == 0 {
		payload["lead"] = lead
		payload["tags"] = lead.TagValues()

		return payload
	}

	fields := make(map[string]any, len(data.Fields))

	for _, field := range data.Fields {
		switch field {
		case "id":
			fields["id"] = lead.ID
		case "name":
			fields["name"] = lead.Name
		case "phone":
			fields["phone"] = lead.Phone
		case "stage_id":
			fields["stage_id"] = lead.StageID
		case "responsible_id":
			fields["responsible_id"] = lead.ResponsibleID
		case "tags":
			fields["tags"] = lead.TagValues()
		default:
			if lead.Attributes != nil {
				fields[field] = lead.Attributes[field]
			}
		}
	}

	payload["lead"] = fields

	return payload
}
