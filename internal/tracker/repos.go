package tracker

import (
	"context"

	"github.com/inovacc/labelr/internal/model"
)

// Exists reports whether repo is visible with token
func (c *Client) Exists(ctx context.Context, repo model.Repo, token string) (bool, error) {
	_, _, err := c.api(ctx, token).Repositories.Get(ctx, repo.Owner, repo.Name)
	if err == nil {
		return true, nil
	}

	if isNotFound(err) {
		return false, nil
	}

	return false, model.Remote("get repository", err)
}

// Permission returns the permission level (admin, write, read, none) of
// login on repo
func (c *Client) Permission(ctx context.Context, repo model.Repo, login, token string) (string, error) {
	level, _, err := c.api(ctx, token).Repositories.GetPermissionLevel(ctx, repo.Owner, repo.Name, login)
	if err != nil {
		return "", translate("get permission level", err)
	}

	return level.GetPermission(), nil
}

// User returns the login of the user owning token
func (c *Client) User(ctx context.Context, token string) (string, error) {
	user, _, err := c.api(ctx, token).Users.Get(ctx, "")
	if err != nil {
		return "", translate("get user", err)
	}

	return user.GetLogin(), nil
}
