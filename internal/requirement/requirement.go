// Package requirement converts source tracker issues into the classifier
// service's requirement records.
package requirement

import (
	"strconv"

	"github.com/inovacc/labelr/internal/model"
)

// FromIssues converts issues into requirements.
//
// For classification every non pull request issue yields one requirement with
// the issue number as id. For training every (issue, label) pair of a non pull
// request issue yields one requirement with id "<number>_<labelID>" and the
// label name as requirement type; issues without labels are dropped.
func FromIssues(issues []model.Issue, forClassify bool) []model.Requirement {
	reqs := make([]model.Requirement, 0, len(issues))

	for _, issue := range issues {
		if issue.PullRequest {
			continue
		}

		if forClassify {
			reqs = append(reqs, model.Requirement{
				ID:   model.RequirementID(strconv.Itoa(issue.Number)),
				Text: issue.Body,
			})

			continue
		}

		for _, label := range issue.Labels {
			reqs = append(reqs, model.Requirement{
				ID:              model.RequirementID(strconv.Itoa(issue.Number) + "_" + strconv.FormatInt(label.ID, 10)),
				Text:            issue.Body,
				RequirementType: label.Name,
			})
		}
	}

	return reqs
}

// IssueNumber returns the issue number a classification requirement id refers to.
func IssueNumber(id model.RequirementID) (int, error) {
	return strconv.Atoi(string(id))
}
