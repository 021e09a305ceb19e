package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inovacc/labelr/internal/model"
)

const (
	colorSuccess = "#2eb886"
	colorFailure = "#e01e5a"
)

// SlackMessage is the payload of a Slack incoming webhook.
type SlackMessage struct {
	// Channel overrides the webhook's default channel
	Channel string `json:"channel,omitempty"`

	// Text is the fallback text for notifications
	Text string `json:"text"`

	// Attachments carry the color bar and the run fields
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a legacy Slack attachment.
type Attachment struct {
	Color    string  `json:"color,omitempty"`
	Fallback string  `json:"fallback,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
}

// Field is one short key/value shown in an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackSender posts run notifications to a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
	channel    string
	httpClient *http.Client
}

// SlackOption configures a SlackSender.
type SlackOption func(*SlackSender)

// WithChannel sets the target channel.
func WithChannel(channel string) SlackOption {
	return func(s *SlackSender) {
		s.channel = channel
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SlackOption {
	return func(s *SlackSender) {
		s.httpClient = client
	}
}

// NewSlackSender creates a sender for webhookURL.
func NewSlackSender(webhookURL string, opts ...SlackOption) *SlackSender {
	s := &SlackSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the sender name.
func (s *SlackSender) Name() string {
	return "slack"
}

// Send posts run to the webhook.
func (s *SlackSender) Send(ctx context.Context, run *model.Run) error {
	body, err := json.Marshal(FormatRun(run, s.channel))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return nil
}

// FormatRun renders a finished run as a Slack message.
func FormatRun(run *model.Run, channel string) *SlackMessage {
	verb := "Training"
	if run.Kind == model.RunKindClassify {
		verb = "Classification"
	}

	color := colorSuccess
	outcome := "succeeded"

	if run.Status == model.RunFailed {
		color = colorFailure
		outcome = "failed"
	}

	text := fmt.Sprintf("%s of %s %s", verb, run.Repo, outcome)

	fields := []Field{
		{Title: "Repository", Value: run.Repo, Short: true},
	}

	if run.Model != "" {
		fields = append(fields, Field{Title: "Model", Value: run.Model, Short: true})
	}

	if run.Kind == model.RunKindClassify {
		mode := "incremental"
		if run.Batch {
			mode = "batch"
		}

		fields = append(fields, Field{Title: "Mode", Value: mode, Short: true})
	}

	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		fields = append(fields, Field{
			Title: "Duration",
			Value: run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			Short: true,
		})
	}

	if run.Error != "" {
		fields = append(fields, Field{Title: "Error", Value: run.Error})
	}

	fields = append(fields, Field{Title: "Run", Value: run.ID})

	return &SlackMessage{
		Channel: channel,
		Text:    text,
		Attachments: []Attachment{{
			Color:    color,
			Fallback: text,
			Fields:   fields,
		}},
	}
}

// ValidateWebhookURL checks if a webhook URL is valid.
func ValidateWebhookURL(url string) error {
	if url == "" {
		return fmt.Errorf("webhook URL is required")
	}

	if !strings.HasPrefix(url, "https://hooks.slack.com/services/") {
		return fmt.Errorf("invalid Slack webhook URL: must start with https://hooks.slack.com/services/")
	}

	return nil
}
