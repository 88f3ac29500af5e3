package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/publish-engine/internal/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookEndpointKey    = "endpoint"
	webhookSecretKey      = "secret"
)

type webhookRequest struct {
	ContentID    string   `json:"contentId"`
	Platform     string   `json:"platform"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Excerpt      string   `json:"excerpt,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	CanonicalURL string   `json:"canonicalUrl,omitempty"`
}

type webhookResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// WebhookPublisher posts content as JSON to an HTTP endpoint. A target may
// override the endpoint through its "endpoint" config key.
type WebhookPublisher struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookPublisher(endpoint string) (*WebhookPublisher, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookPublisherWithClient(endpoint, client)
}

func NewWebhookPublisherWithClient(endpoint string, client *resty.Client) (*WebhookPublisher, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint != "" {
		if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
			return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
		}
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookPublisher{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WebhookPublisher) Publish(ctx context.Context, content FormattedContent) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("publisher is not initialized")
	}

	endpoint := content.Target.Config.Get(webhookEndpointKey)
	if endpoint == "" {
		endpoint = p.endpoint
	}
	if endpoint == "" {
		return nil, &PlatformError{
			Platform: domain.PlatformWebhook,
			Message:  "webhook endpoint not configured",
		}
	}

	reqBody := webhookRequest{
		ContentID:    content.ContentID,
		Platform:     content.Target.Type.String(),
		Title:        content.Title,
		Body:         content.Body,
		Excerpt:      content.Excerpt,
		Tags:         content.Tags,
		CanonicalURL: content.CanonicalURL,
	}

	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody)
	if secret := content.Target.Config.Get(webhookSecretKey); secret != "" {
		req.SetHeader("Authorization", "Bearer "+secret)
	}

	response, err := req.Post(endpoint)
	if err != nil {
		return nil, &PlatformError{
			Platform:  domain.PlatformWebhook,
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &PlatformError{
			Platform:  domain.PlatformWebhook,
			Message:   "webhook returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &PlatformError{
			Platform:   domain.PlatformWebhook,
			StatusCode: statusCode,
			Message:    webhookErrorMessage(statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	var parsed webhookResponse
	if responseBody != "" {
		_ = json.Unmarshal([]byte(responseBody), &parsed)
	}

	// A 2xx that reports failure in its body is still a failure.
	if (parsed.Success != nil && !*parsed.Success) || strings.TrimSpace(parsed.Error) != "" {
		msg := strings.TrimSpace(parsed.Error)
		if msg == "" {
			msg = "webhook reported failure"
		}
		return nil, &PlatformError{
			Platform:   domain.PlatformWebhook,
			StatusCode: statusCode,
			Message:    msg,
		}
	}

	externalID := strings.TrimSpace(parsed.ID)
	if externalID == "" {
		externalID = responseRequestID(response)
	}

	return &Result{
		ExternalID: externalID,
		URL:        strings.TrimSpace(parsed.URL),
		Metadata: map[string]any{
			"statusCode": statusCode,
		},
	}, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("webhook returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func responseRequestID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
