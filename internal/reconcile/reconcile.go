// Package reconcile decides, for each inbound train, classify or webhook
// request, whether a run is needed and hands it to the run queue.
//
// The classifier service is the only authoritative signal of a trained
// model. Local registry and ledger rows exist to suppress duplicate runs
// and to remember what was classified; they never substitute for the
// remote answer.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inovacc/labelr/internal/model"
)

// Decision is the outcome of a reconciliation
type Decision string

const (
	// AlreadyAssociated means the model was ready; the user was associated and no run started
	AlreadyAssociated Decision = "already_associated"

	// InProgress means a training run started within the timeout window
	InProgress Decision = "in_progress"

	// Started means a training run was enqueued
	Started Decision = "started"

	// Scheduled means a batch classification run was enqueued
	Scheduled Decision = "scheduled"

	// AlreadyDone means the repository is classified, or being classified, with that model
	AlreadyDone Decision = "already_done"

	// Queued means an incremental classification run was enqueued
	Queued Decision = "queued"
)

// Message is the human readable form of d
func (d Decision) Message() string {
	switch d {
	case AlreadyAssociated:
		return "Trained model has been associated to your userbase."
	case InProgress:
		return "Training in progress from previous call... please wait"
	case Started:
		return "Training started. The model has been associated to your userbase."
	case Scheduled:
		return "Classification scheduled successfully."
	case AlreadyDone:
		return "Repository has been classified already or classification is still in progress."
	case Queued:
		return "Issue queued for classification."
	default:
		return string(d)
	}
}

// Result is a decision and, when a run was enqueued, its ID
type Result struct {
	Decision Decision `json:"decision"`
	RunID    string   `json:"run_id,omitempty"`
}

// Registry is the Model Registry plus user associations
type Registry interface {
	GetModel(ctx context.Context, repo string) (*model.ModelRecord, error)
	UpsertModel(ctx context.Context, repo string, ready bool) (*model.ModelRecord, error)
	ArmModel(ctx context.Context, repo string, timeout time.Duration) (*model.ModelRecord, bool, error)
	DisarmModel(ctx context.Context, repo string, prev *model.ModelRecord) error
	UpsertTraining(ctx context.Context, username, repo string) error
}

// Ledger is the Classification Ledger
type Ledger interface {
	GetClassification(ctx context.Context, repo string) (*model.ClassificationRecord, error)
	ArmClassification(ctx context.Context, repo, modelRepo, username string, timeout time.Duration) (*model.ClassificationRecord, bool, error)
	DisarmClassification(ctx context.Context, repo string, prev *model.ClassificationRecord) error
}

// Tracker answers existence and installation questions about repositories
type Tracker interface {
	Exists(ctx context.Context, repo model.Repo, token string) (bool, error)
	IsInstalled(ctx context.Context, repo model.Repo) (bool, error)
}

// Classifier probes the classifier service for a model
type Classifier interface {
	ModelExists(ctx context.Context, company, property string) (bool, error)
}

// Queue accepts runs for asynchronous execution
type Queue interface {
	Enqueue(job model.Job) (string, error)
}

// Config holds the staleness windows
type Config struct {
	TrainingTimeout       time.Duration
	ClassificationTimeout time.Duration
}

// Reconciler makes the scheduling decisions
type Reconciler struct {
	registry   Registry
	ledger     Ledger
	tracker    Tracker
	classifier Classifier
	queue      Queue
	config     Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Reconciler
func New(registry Registry, ledger Ledger, tracker Tracker, classifier Classifier, queue Queue, config Config) *Reconciler {
	return &Reconciler{
		registry:   registry,
		ledger:     ledger,
		tracker:    tracker,
		classifier: classifier,
		queue:      queue,
		config:     config,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// WithLogger sets a custom logger
func (r *Reconciler) WithLogger(logger *slog.Logger) *Reconciler {
	r.logger = logger
	return r
}

// WithClock replaces the time source
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// DecideTraining handles a train request for repoName by username. token
// is the caller's access token, used for the repository existence check.
func (r *Reconciler) DecideTraining(ctx context.Context, repoName, username, token string) (Result, error) {
	repo, err := model.ParseRepo(repoName)
	if err != nil {
		return Result{}, err
	}

	key := repo.String()
	logger := r.logger.With(slog.String("repo", key), slog.String("user", username))

	exists, err := r.classifier.ModelExists(ctx, repo.Owner, repo.Name)
	if err != nil {
		return Result{}, err
	}

	result := Result{Decision: AlreadyAssociated}

	if exists {
		// Remote readiness overrides any local in-progress record
		if _, err := r.registry.UpsertModel(ctx, key, true); err != nil {
			return Result{}, err
		}

		logger.Debug("model exists remotely")
	} else {
		rec, err := r.registry.GetModel(ctx, key)
		if err != nil {
			return Result{}, err
		}

		if r.trainingInFlight(rec) {
			logger.Debug("training in progress", slog.Time("updated_at", rec.UpdatedAt))
			return Result{Decision: InProgress}, nil
		}

		found, err := r.tracker.Exists(ctx, repo, token)
		if err != nil {
			return Result{}, err
		}

		if !found {
			return Result{}, fmt.Errorf("%s: %w", key, model.ErrNotFound)
		}

		prev, armed, err := r.registry.ArmModel(ctx, key, r.config.TrainingTimeout)
		if err != nil {
			return Result{}, err
		}

		if !armed {
			logger.Debug("training armed concurrently")
			return Result{Decision: InProgress}, nil
		}

		runID, err := r.queue.Enqueue(model.Job{Kind: model.RunKindTrain, Repo: key})
		if err != nil {
			// no run behind the armed record
			if derr := r.registry.DisarmModel(context.WithoutCancel(ctx), key, prev); derr != nil {
				logger.Error("failed to disarm model", "error", derr)
			}

			return Result{}, fmt.Errorf("enqueueing training: %w", err)
		}

		logger.Info("training enqueued", slog.String("run", runID))

		result = Result{Decision: Started, RunID: runID}
	}

	if err := r.registry.UpsertTraining(ctx, username, key); err != nil {
		return Result{}, err
	}

	return result, nil
}

func (r *Reconciler) trainingInFlight(rec *model.ModelRecord) bool {
	if rec == nil || rec.Ready {
		return false
	}

	return r.now().Sub(rec.UpdatedAt) < r.config.TrainingTimeout
}

// DecideClassification handles a request to classify targetName with the
// model trained on modelName. token is the caller's access token.
func (r *Reconciler) DecideClassification(ctx context.Context, targetName, modelName, username, token string) (Result, error) {
	target, err := model.ParseRepo(targetName)
	if err != nil {
		return Result{}, err
	}

	modelRepo, err := model.ParseRepo(modelName)
	if err != nil {
		return Result{}, err
	}

	logger := r.logger.With(slog.String("repo", target.String()), slog.String("model", modelRepo.String()))

	found, err := r.tracker.Exists(ctx, target, token)
	if err != nil {
		return Result{}, err
	}

	if !found {
		return Result{}, fmt.Errorf("%s: %w", target, model.ErrNotFound)
	}

	installed, err := r.tracker.IsInstalled(ctx, target)
	if err != nil {
		return Result{}, err
	}

	if !installed {
		return Result{}, fmt.Errorf("%s: %w", target, model.ErrNotInstalled)
	}

	trained, err := r.classifier.ModelExists(ctx, modelRepo.Owner, modelRepo.Name)
	if err != nil {
		return Result{}, err
	}

	if !trained {
		return Result{}, fmt.Errorf("%s: %w", modelRepo, model.ErrModelNotTrained)
	}

	prev, armed, err := r.ledger.ArmClassification(ctx, target.String(), modelRepo.String(), username, r.config.ClassificationTimeout)
	if err != nil {
		return Result{}, err
	}

	if !armed {
		return Result{Decision: AlreadyDone}, nil
	}

	if prev != nil && prev.Model != modelRepo.String() {
		logger.Info("model changed, re-arming classification", slog.String("previous", prev.Model))
	}

	runID, err := r.queue.Enqueue(model.Job{
		Kind:  model.RunKindClassify,
		Repo:  target.String(),
		Model: modelRepo.String(),
		Batch: true,
	})
	if err != nil {
		if derr := r.ledger.DisarmClassification(context.WithoutCancel(ctx), target.String(), prev); derr != nil {
			logger.Error("failed to disarm classification", "error", derr)
		}

		return Result{}, fmt.Errorf("enqueueing classification: %w", err)
	}

	logger.Info("classification scheduled", slog.String("run", runID))

	return Result{Decision: Scheduled, RunID: runID}, nil
}

// DecideIncremental handles a single changed issue of targetName. It is
// allowed only once a batch classification completed for the repository.
func (r *Reconciler) DecideIncremental(ctx context.Context, targetName string, issue model.Issue) (Result, error) {
	target, err := model.ParseRepo(targetName)
	if err != nil {
		return Result{}, err
	}

	rec, err := r.ledger.GetClassification(ctx, target.String())
	if err != nil {
		return Result{}, err
	}

	if rec == nil || !rec.Classified {
		return Result{}, fmt.Errorf("%s: %w", target, model.ErrNotReady)
	}

	runID, err := r.queue.Enqueue(model.Job{
		Kind:   model.RunKindClassify,
		Repo:   target.String(),
		Model:  rec.Model,
		Issues: []model.Issue{issue},
	})
	if err != nil {
		return Result{}, fmt.Errorf("enqueueing incremental classification: %w", err)
	}

	r.logger.Info("incremental classification queued",
		slog.String("repo", target.String()),
		slog.Int("issue", issue.Number),
		slog.String("run", runID),
	)

	return Result{Decision: Queued, RunID: runID}, nil
}
