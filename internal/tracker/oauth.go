package tracker

import (
	"context"
	"fmt"

	"github.com/inovacc/labelr/internal/model"
)

// AuthorizeURL returns the OAuth authorize URL carrying state
func (c *Client) AuthorizeURL(state, redirectURL string) string {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURL

	return cfg.AuthCodeURL(state)
}

// Exchange trades an OAuth code for a user access token
func (c *Client) Exchange(ctx context.Context, code, redirectURL string) (string, error) {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURL

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", model.Remote("oauth exchange", err)
	}

	return tok.AccessToken, nil
}

// ManageURL returns the page where a user reviews the app's OAuth grant
func (c *Client) ManageURL() string {
	web := "https://github.com"
	if c.cfg.WebURL != "" {
		web = c.cfg.WebURL
	}

	return fmt.Sprintf("%s/settings/connections/applications/%s", web, c.cfg.ClientID)
}
