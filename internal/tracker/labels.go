package tracker

import (
	"context"

	"github.com/google/go-github/v82/github"
	"github.com/inovacc/labelr/internal/model"
)

// LabelsOf returns every label defined on repo
func (c *Client) LabelsOf(ctx context.Context, repo model.Repo, token string) ([]model.Label, error) {
	client := c.api(ctx, token)
	opt := &github.ListOptions{PerPage: 100}

	var all []model.Label

	for {
		labels, resp, err := client.Issues.ListLabels(ctx, repo.Owner, repo.Name, opt)
		if err != nil {
			return nil, translate("list labels", err)
		}

		for _, l := range labels {
			all = append(all, convertLabel(l))
		}

		if resp.NextPage == 0 {
			break
		}

		opt.Page = resp.NextPage
	}

	return all, nil
}

// AddLabel creates label on repo
func (c *Client) AddLabel(ctx context.Context, repo model.Repo, label model.Label, token string) error {
	l := &github.Label{
		Name:  github.Ptr(label.Name),
		Color: github.Ptr(label.Color),
	}

	if label.Description != "" {
		l.Description = github.Ptr(label.Description)
	}

	_, _, err := c.api(ctx, token).Issues.CreateLabel(ctx, repo.Owner, repo.Name, l)

	return translate("create label", err)
}

// RemoveLabel deletes the label called name from repo
func (c *Client) RemoveLabel(ctx context.Context, repo model.Repo, name, token string) error {
	_, err := c.api(ctx, token).Issues.DeleteLabel(ctx, repo.Owner, repo.Name, name)

	return translate("delete label", err)
}
