// Package model defines the data structures shared by labelr's store,
// reconciler, runner and HTTP layers.
//
// # Records
//
// [ModelRecord] is a repository acting as a trained classifier model. It is
// armed with Ready=false when a training run is enqueued and flipped to
// Ready=true when the classifier confirms the model.
//
// [ClassificationRecord] is the ledger row for a target repository classified
// by a model. At most one exists per target repository.
//
// [TrainingAssociation] links a user to a model repository they asked to train.
//
// # Tracker and classifier shapes
//
// [Issue] and [Label] are the source tracker's shapes reduced to what the
// pipelines need. [Requirement] and [Recommendation] are the classifier
// service's input and output units.
//
// # Errors
//
// The error taxonomy lives in errors.go: sentinel errors for validation
// failures and [RemoteError] for failed collaborator calls.
package model
