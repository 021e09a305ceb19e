// Package openreq is the classifier service collaborator: a client for the
// OpenReq classifier component HTTP API.
package openreq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inovacc/labelr/internal/model"
)

const componentPath = "/upc/classifier-component/"

// APIError is a non-2xx answer from the classifier service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("classifier returned status %d", e.StatusCode)
	}

	return fmt.Sprintf("classifier returned status %d: %s", e.StatusCode, e.Message)
}

// Client calls the classifier component
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the service at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type requirementsBody struct {
	Requirements []model.Requirement `json:"requirements"`
}

// Train submits labeled requirements to build the model for company/property
func (c *Client) Train(ctx context.Context, company, property string, requirements []model.Requirement) error {
	_, err := c.post(ctx, "train", company, property, requirements)
	if err != nil {
		return model.Remote("classifier train", err)
	}

	c.logger.Debug("model trained",
		slog.String("company", company),
		slog.String("property", property),
		slog.Int("requirements", len(requirements)),
	)

	return nil
}

// Classify returns predicted labels for requirements using the model of
// company/property
func (c *Client) Classify(ctx context.Context, company, property string, requirements []model.Requirement) ([]model.Recommendation, error) {
	body, err := c.post(ctx, "classify", company, property, requirements)
	if err != nil {
		return nil, model.Remote("classifier classify", err)
	}

	recs, err := decodeRecommendations(body)
	if err != nil {
		return nil, model.Remote("classifier classify", err)
	}

	return recs, nil
}

// ModelExists reports whether a model exists for company/property. The
// service has no existence query, so an empty classification that answers
// without error counts as existing.
func (c *Client) ModelExists(ctx context.Context, company, property string) (bool, error) {
	_, err := c.post(ctx, "classify", company, property, []model.Requirement{})
	if err == nil {
		return true, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false, nil
	}

	// Transport failures say nothing about the model
	return false, model.Remote("classifier probe", err)
}

func (c *Client) post(ctx context.Context, op, company, property string, requirements []model.Requirement) ([]byte, error) {
	if requirements == nil {
		requirements = []model.Requirement{}
	}

	payload, err := json.Marshal(requirementsBody{Requirements: requirements})
	if err != nil {
		return nil, fmt.Errorf("encoding requirements: %w", err)
	}

	q := url.Values{}
	q.Set("company", company)
	q.Set("property", property)

	endpoint := c.baseURL + componentPath + op + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	return body, nil
}

// decodeRecommendations accepts both a bare array and an object with a
// recommendations field
func decodeRecommendations(body []byte) ([]model.Recommendation, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []model.Recommendation{}, nil
	}

	var recs []model.Recommendation

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("decoding recommendations: %w", err)
		}

		return recs, nil
	}

	var wrapped struct {
		Recommendations []model.Recommendation `json:"recommendations"`
	}

	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding recommendations: %w", err)
	}

	if wrapped.Recommendations == nil {
		return []model.Recommendation{}, nil
	}

	return wrapped.Recommendations, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}

	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}

	return strings.TrimSpace(string(body))
}

// SplitRepo returns the company and property a repository maps to
func SplitRepo(repo model.Repo) (company, property string) {
	return repo.Owner, repo.Name
}
