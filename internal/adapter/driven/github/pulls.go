package github

import (
	"context"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// Pull request states reported by listPullRequests. GitHub itself only
// knows open and closed; a closed pull request with a merge time is merged.
const (
	PRStatusOpen   = "open"
	PRStatusClosed = "closed"
	PRStatusMerged = "merged"
)

// PullRequest is one listPullRequests item.
type PullRequest struct {
	Number             int       `json:"number"`
	Title              string    `json:"title"`
	Status             string    `json:"status"`
	Draft              bool      `json:"draft"`
	Author             string    `json:"author"`
	URL                string    `json:"url"`
	Branch             string    `json:"branch"`
	BaseBranch         string    `json:"base_branch"`
	Labels             []string  `json:"labels"`
	RequestedReviewers []string  `json:"requested_reviewers"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PullRequestList is returned by listPullRequests.
type PullRequestList struct {
	PullRequests []PullRequest `json:"pull_requests"`
	Count        int           `json:"count"`
}

func (a *Adapter) listPullRequests(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	owner, repo, err := splitRepo(p.String("repo"))
	if err != nil {
		return nil, err
	}
	state, err := listState(p)
	if err != nil {
		return nil, err
	}
	n, err := perPage(p)
	if err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListOptions{
		State:       state,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: n},
	}
	prs, resp, err := a.client(cred.AccessToken).PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, a.translate(err)
	}
	a.logRateLimit(resp, owner+"/"+repo+"/pulls", len(prs))

	out := PullRequestList{PullRequests: make([]PullRequest, 0, len(prs))}
	for _, pr := range prs {
		out.PullRequests = append(out.PullRequests, mapPullRequest(pr))
	}
	out.Count = len(out.PullRequests)
	return out, nil
}

// mapPullRequest uses GetXxx() helpers exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest) PullRequest {
	status := PRStatusOpen
	if !pr.GetMergedAt().IsZero() {
		status = PRStatusMerged
	} else if pr.GetState() == "closed" {
		status = PRStatusClosed
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	reviewers := make([]string, 0, len(pr.RequestedReviewers))
	for _, r := range pr.RequestedReviewers {
		reviewers = append(reviewers, r.GetLogin())
	}

	return PullRequest{
		Number:             pr.GetNumber(),
		Title:              pr.GetTitle(),
		Status:             status,
		Draft:              pr.GetDraft(),
		Author:             pr.GetUser().GetLogin(),
		URL:                pr.GetHTMLURL(),
		Branch:             pr.GetHead().GetRef(),
		BaseBranch:         pr.GetBase().GetRef(),
		Labels:             labels,
		RequestedReviewers: reviewers,
		CreatedAt:          pr.GetCreatedAt().Time,
		UpdatedAt:          pr.GetUpdatedAt().Time,
	}
}
