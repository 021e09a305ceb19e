package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Issue is a source tracker issue reduced to the fields used for training
// and classification.
type Issue struct {
	Number      int     `json:"number"`
	Title       string  `json:"title,omitempty"`
	Body        string  `json:"body"`
	PullRequest bool    `json:"pull_request,omitempty"`
	Labels      []Label `json:"labels,omitempty"`
}

// Label is a source tracker label.
type Label struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Requirement is the classifier service's input unit.
// RequirementType is empty for classification input.
type Requirement struct {
	ID              RequirementID `json:"id"`
	Text            string        `json:"text"`
	RequirementType string        `json:"requirement_type,omitempty"`
}

// Recommendation is a predicted label for one requirement.
type Recommendation struct {
	Requirement     RequirementID `json:"requirement"`
	RequirementType string        `json:"requirement_type"`
	Confidence      float64       `json:"confidence"`
}

// RequirementID identifies a requirement. Classification ids are issue
// numbers and go on the wire as JSON numbers; training ids of the form
// "<number>_<labelID>" go as strings. Either form is accepted on input.
type RequirementID string

// MarshalJSON encodes canonical integers as numbers, anything else as a string.
func (id RequirementID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}

	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON string or number.
func (id *RequirementID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = RequirementID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("requirement id: %w", err)
	}

	*id = RequirementID(n.String())

	return nil
}
