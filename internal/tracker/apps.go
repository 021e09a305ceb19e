package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inovacc/labelr/internal/model"
)

// InstallationToken returns a write-capable token for repo minted from the
// app installation. It fails with model.ErrNotInstalled when the app is
// not installed on repo.
func (c *Client) InstallationToken(ctx context.Context, repo model.Repo) (string, error) {
	signed, err := c.appJWT()
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrNotInstalled, err)
	}

	client := c.api(ctx, signed)

	inst, _, err := client.Apps.FindRepositoryInstallation(ctx, repo.Owner, repo.Name)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%s: %w", repo, model.ErrNotInstalled)
		}

		return "", model.Remote("find installation", err)
	}

	tok, _, err := client.Apps.CreateInstallationToken(ctx, inst.GetID(), nil)
	if err != nil {
		return "", model.Remote("create installation token", err)
	}

	c.logger.Debug("minted installation token",
		slog.String("repo", repo.String()),
		slog.Int64("installation", inst.GetID()),
	)

	return tok.GetToken(), nil
}

// IsInstalled reports whether the app is installed on repo
func (c *Client) IsInstalled(ctx context.Context, repo model.Repo) (bool, error) {
	signed, err := c.appJWT()
	if err != nil {
		return false, err
	}

	_, _, err = c.api(ctx, signed).Apps.FindRepositoryInstallation(ctx, repo.Owner, repo.Name)
	if err == nil {
		return true, nil
	}

	if isNotFound(err) {
		return false, nil
	}

	return false, model.Remote("find installation", err)
}

// AppPageURL returns the public page of the app, where users install it
func (c *Client) AppPageURL(ctx context.Context) (string, error) {
	signed, err := c.appJWT()
	if err != nil {
		return "", err
	}

	app, _, err := c.api(ctx, signed).Apps.Get(ctx, "")
	if err != nil {
		return "", translate("get app", err)
	}

	return app.GetHTMLURL(), nil
}
