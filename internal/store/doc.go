// Package store provides labelr's durable state on SQLite.
//
// The [Store] holds four tables:
//   - models: the Model Registry, one row per model repository
//   - trainings: user to model associations
//   - classifications: the Classification Ledger, one row per target repository
//   - runs: history of executor runs and their state
//
// Every mutation is a single-row upsert keyed by repository identifier. The
// Arm* operations wrap the timeout check and the write in one transaction so
// only one caller can arm a given record at a time.
//
// Lookups return (nil, nil) when the row does not exist.
package store
