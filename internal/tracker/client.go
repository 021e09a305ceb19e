// Package tracker is the source tracker collaborator: issues, labels,
// repositories, app installations and user identity on GitHub.
//
// Every call takes the access token it should act with. An empty token
// falls back to the configured personal access token, or to anonymous
// access when none is set.
package tracker

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v82/github"
	"github.com/inovacc/labelr/internal/model"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// Config configures the GitHub client
type Config struct {
	// AppID and PrivateKeyPEM identify the GitHub App used for installation tokens
	AppID         int64
	PrivateKeyPEM []byte

	// ClientID and ClientSecret are the OAuth credentials for user login
	ClientID     string
	ClientSecret string

	// PersonalAccessToken is used for reads made without a user token
	PersonalAccessToken string

	// APIURL overrides the REST endpoint (GitHub Enterprise, tests)
	APIURL string

	// WebURL overrides the OAuth endpoint host
	WebURL string

	// MaxPages bounds issue pagination; 0 means unbounded
	MaxPages int
}

// Client talks to the GitHub REST API
type Client struct {
	cfg     Config
	baseURL *url.URL
	key     *rsa.PrivateKey
	oauth   *oauth2.Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Client from cfg
func New(cfg Config) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}

	if cfg.APIURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid api url: %w", err)
		}

		c.baseURL = u
	}

	if len(cfg.PrivateKeyPEM) > 0 {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing app private key: %w", err)
		}

		c.key = key
	}

	endpoint := githuboauth.Endpoint
	if cfg.WebURL != "" {
		web := strings.TrimSuffix(cfg.WebURL, "/")
		endpoint = oauth2.Endpoint{
			AuthURL:  web + "/login/oauth/authorize",
			TokenURL: web + "/login/oauth/access_token",
		}
	}

	c.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
	}

	return c, nil
}

// WithLogger sets a custom logger
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithClock replaces the time source used for app JWTs
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// api returns a go-github client acting with token
func (c *Client) api(ctx context.Context, token string) *github.Client {
	if token == "" {
		token = c.cfg.PersonalAccessToken
	}

	var hc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(hc)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}

	return client
}

// appJWT signs a short-lived GitHub App token
func (c *Client) appJWT() (string, error) {
	if c.key == nil || c.cfg.AppID == 0 {
		return "", errors.New("github app credentials not configured")
	}

	now := c.now()

	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", c.cfg.AppID),
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
}

// translate maps a GitHub 404 to model.ErrNotFound and everything else
// to a model.RemoteError
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	if isNotFound(err) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}

	return model.Remote(op, err)
}

func isNotFound(err error) bool {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode == http.StatusNotFound
	}

	return false
}
