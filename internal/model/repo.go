package model

import (
	"fmt"
	"strings"
)

// Repo is a repository identifier in owner/name form.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses a repository full name in the format "owner/name".
func ParseRepo(fullName string) (Repo, error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("%w: expected 'owner/name', got %q", ErrInvalidIdentifier, fullName)
	}

	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

// String returns the repository full name.
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}
