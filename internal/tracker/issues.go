package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/go-github/v82/github"
	"github.com/inovacc/labelr/internal/model"
)

// IssuesOf returns every issue of repo, open and closed, including pull
// requests flagged as such
func (c *Client) IssuesOf(ctx context.Context, repo model.Repo, token string) ([]model.Issue, error) {
	client := c.api(ctx, token)

	opt := &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var (
		all   []model.Issue
		pages int
	)

	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opt)
		if err != nil {
			var rateLimitErr *github.RateLimitError
			if errors.As(err, &rateLimitErr) {
				waitDuration := time.Until(rateLimitErr.Rate.Reset.Time) + time.Second

				c.logger.Warn("rate limited, waiting",
					slog.String("repo", repo.String()),
					slog.Duration("wait", waitDuration),
				)

				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(waitDuration):
					continue
				}
			}

			return nil, translate("list issues", err)
		}

		for _, issue := range issues {
			all = append(all, convertIssue(issue))
		}

		pages++

		if resp.NextPage == 0 {
			break
		}

		if c.cfg.MaxPages > 0 && pages >= c.cfg.MaxPages {
			c.logger.Warn("issue listing truncated",
				slog.String("repo", repo.String()),
				slog.Int("pages", pages),
			)

			break
		}

		opt.Page = resp.NextPage
	}

	c.logger.Debug("fetched issues",
		slog.String("repo", repo.String()),
		slog.Int("count", len(all)),
	)

	return all, nil
}

// ReplaceIssueLabels sets the labels of issue number to exactly labels
func (c *Client) ReplaceIssueLabels(ctx context.Context, repo model.Repo, number int, labels []string, token string) error {
	_, _, err := c.api(ctx, token).Issues.ReplaceLabelsForIssue(ctx, repo.Owner, repo.Name, number, labels)

	return translate("replace issue labels", err)
}

// ConvertIssue maps a go-github issue, as found in API responses and
// webhook payloads, to a model.Issue
func ConvertIssue(issue *github.Issue) model.Issue {
	return convertIssue(issue)
}

func convertIssue(issue *github.Issue) model.Issue {
	out := model.Issue{
		Number:      issue.GetNumber(),
		Title:       issue.GetTitle(),
		Body:        issue.GetBody(),
		PullRequest: issue.IsPullRequest(),
	}

	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, convertLabel(l))
	}

	return out
}

func convertLabel(l *github.Label) model.Label {
	return model.Label{
		ID:          l.GetID(),
		Name:        l.GetName(),
		Color:       l.GetColor(),
		Description: l.GetDescription(),
	}
}
