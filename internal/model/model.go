package model

import "time"

// ModelRecord identifies a repository acting as a trained model.
type ModelRecord struct {
	// Repo is the repository full name (owner/name) and the primary key
	Repo string `json:"repo"`

	// Ready is true once the classifier confirmed the model is trained
	Ready bool `json:"ready"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrainingAssociation links a user to a model repository.
type TrainingAssociation struct {
	Username string `json:"username"`
	Repo     string `json:"repo"`
}

// TrainedModel is a user's model as listed by the my-models endpoint.
type TrainedModel struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// ClassificationRecord is the ledger row for a target repository.
type ClassificationRecord struct {
	// Repo is the target repository full name and the primary key
	Repo string `json:"repo"`

	// Model is the repository full name used as classifier
	Model string `json:"model"`

	// Username is the user who requested the classification
	Username string `json:"username,omitempty"`

	// Classified is true once the first full batch run completed
	Classified bool `json:"classified"`

	StartedAt time.Time `json:"started_at"`

	// CompletedAt is zero until a batch run completes
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
