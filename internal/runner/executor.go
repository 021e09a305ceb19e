// Package runner executes training and classification runs and hosts the
// worker pool that drains the run queue.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inovacc/labelr/internal/model"
	"github.com/inovacc/labelr/internal/openreq"
	"github.com/inovacc/labelr/internal/requirement"
)

// Tracker is the source tracker used by runs
type Tracker interface {
	IssuesOf(ctx context.Context, repo model.Repo, token string) ([]model.Issue, error)
	LabelsOf(ctx context.Context, repo model.Repo, token string) ([]model.Label, error)
	AddLabel(ctx context.Context, repo model.Repo, label model.Label, token string) error
	RemoveLabel(ctx context.Context, repo model.Repo, name, token string) error
	ReplaceIssueLabels(ctx context.Context, repo model.Repo, number int, labels []string, token string) error
	InstallationToken(ctx context.Context, repo model.Repo) (string, error)
}

// Classifier is the classifier service used by runs
type Classifier interface {
	Train(ctx context.Context, company, property string, requirements []model.Requirement) error
	Classify(ctx context.Context, company, property string, requirements []model.Requirement) ([]model.Recommendation, error)
}

// Completer records run completion in the registry and ledger
type Completer interface {
	UpsertModel(ctx context.Context, repo string, ready bool) (*model.ModelRecord, error)
	MarkClassified(ctx context.Context, repo, modelRepo string) (bool, error)
}

// Executor performs runs. A failed run leaves registry and ledger state
// untouched so a later reconciliation retries it once its window expires.
type Executor struct {
	tracker    Tracker
	classifier Classifier
	completer  Completer
	threshold  float64
	logger     *slog.Logger
}

// NewExecutor creates an Executor writing labels whose confidence is
// strictly above threshold
func NewExecutor(tracker Tracker, classifier Classifier, completer Completer, threshold float64) *Executor {
	return &Executor{
		tracker:    tracker,
		classifier: classifier,
		completer:  completer,
		threshold:  threshold,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// Run dispatches job to the matching pipeline
func (e *Executor) Run(ctx context.Context, job model.Job) error {
	switch job.Kind {
	case model.RunKindTrain:
		repo, err := model.ParseRepo(job.Repo)
		if err != nil {
			return err
		}

		return e.Train(ctx, repo)
	case model.RunKindClassify:
		target, err := model.ParseRepo(job.Repo)
		if err != nil {
			return err
		}

		modelRepo, err := model.ParseRepo(job.Model)
		if err != nil {
			return err
		}

		return e.Classify(ctx, target, modelRepo, job.Issues, job.Batch)
	default:
		return fmt.Errorf("unknown run kind %q", job.Kind)
	}
}

// Train builds the model for repo from its labeled issues
func (e *Executor) Train(ctx context.Context, repo model.Repo) error {
	start := time.Now()
	logger := e.logger.With(slog.String("repo", repo.String()))

	issues, err := e.tracker.IssuesOf(ctx, repo, "")
	if err != nil {
		return fmt.Errorf("fetching issues: %w", err)
	}

	reqs := requirement.FromIssues(issues, false)

	logger.Info("training model",
		slog.Int("issues", len(issues)),
		slog.Int("requirements", len(reqs)),
	)

	company, property := openreq.SplitRepo(repo)

	if err := e.classifier.Train(ctx, company, property, reqs); err != nil {
		return fmt.Errorf("training: %w", err)
	}

	if _, err := e.completer.UpsertModel(ctx, repo.String(), true); err != nil {
		return fmt.Errorf("marking model ready: %w", err)
	}

	logger.Info("model ready", slog.Duration("duration", time.Since(start)))

	return nil
}

// Classify labels the issues of target with the model trained on
// modelRepo. Without issues every issue of target is classified. A batch
// run first copies the model's label set and, on success, marks the
// ledger record classified.
func (e *Executor) Classify(ctx context.Context, target, modelRepo model.Repo, issues []model.Issue, batch bool) error {
	start := time.Now()
	logger := e.logger.With(
		slog.String("repo", target.String()),
		slog.String("model", modelRepo.String()),
		slog.Bool("batch", batch),
	)

	token, err := e.tracker.InstallationToken(ctx, target)
	if err != nil {
		return fmt.Errorf("resolving installation token: %w", err)
	}

	if batch {
		if err := e.copyLabels(ctx, target, modelRepo, token, logger); err != nil {
			return err
		}
	}

	if len(issues) == 0 {
		issues, err = e.tracker.IssuesOf(ctx, target, token)
		if err != nil {
			return fmt.Errorf("fetching issues: %w", err)
		}
	}

	reqs := requirement.FromIssues(issues, true)

	company, property := openreq.SplitRepo(modelRepo)

	recs, err := e.classifier.Classify(ctx, company, property, reqs)
	if err != nil {
		return fmt.Errorf("classifying: %w", err)
	}

	labeled := 0

	for _, rec := range recs {
		if rec.Confidence <= e.threshold {
			continue
		}

		number, err := requirement.IssueNumber(rec.Requirement)
		if err != nil {
			logger.Warn("skipping recommendation", "error", err)
			continue
		}

		if err := e.tracker.ReplaceIssueLabels(ctx, target, number, []string{rec.RequirementType}, token); err != nil {
			return fmt.Errorf("labeling issue %d: %w", number, err)
		}

		labeled++
	}

	if batch {
		ok, err := e.completer.MarkClassified(ctx, target.String(), modelRepo.String())
		if err != nil {
			return fmt.Errorf("marking classified: %w", err)
		}

		if !ok {
			logger.Warn("classification record vanished or re-armed, not marking classified")
		}
	}

	logger.Info("classification completed",
		slog.Int("requirements", len(reqs)),
		slog.Int("recommendations", len(recs)),
		slog.Int("labeled", labeled),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// copyLabels replaces the label set of target with the one of modelRepo.
// Individual delete and create failures are logged and skipped.
func (e *Executor) copyLabels(ctx context.Context, target, modelRepo model.Repo, token string, logger *slog.Logger) error {
	labels, err := e.tracker.LabelsOf(ctx, modelRepo, "")
	if err != nil {
		return fmt.Errorf("fetching model labels: %w", err)
	}

	existing, err := e.tracker.LabelsOf(ctx, target, token)
	if err != nil {
		return fmt.Errorf("fetching target labels: %w", err)
	}

	for _, l := range existing {
		if err := e.tracker.RemoveLabel(ctx, target, l.Name, token); err != nil {
			logger.Debug("label delete failed", slog.String("label", l.Name), "error", err)
		}
	}

	created := 0

	for _, l := range labels {
		if err := e.tracker.AddLabel(ctx, target, l, token); err != nil {
			logger.Debug("label create failed", slog.String("label", l.Name), "error", err)
			continue
		}

		created++
	}

	logger.Info("labels copied",
		slog.Int("removed", len(existing)),
		slog.Int("created", created),
	)

	return nil
}
