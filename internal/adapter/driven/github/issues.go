package github

import (
	"context"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// Issue is one listIssues item.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	Labels    []string  `json:"labels"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IssueList is returned by listIssues.
type IssueList struct {
	Issues []Issue `json:"issues"`
	Count  int     `json:"count"`
}

// CreatedIssue is returned by createIssue.
type CreatedIssue struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	State  string `json:"state"`
}

// Comment is returned by addComment.
type Comment struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

func (a *Adapter) listIssues(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
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

	opts := &gh.IssueListByRepoOptions{
		State:       state,
		Labels:      p.StringSlice("labels"),
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: n},
	}
	issues, resp, err := a.client(cred.AccessToken).Issues.ListByRepo(ctx, owner, repo, opts)
	if err != nil {
		return nil, a.translate(err)
	}
	a.logRateLimit(resp, owner+"/"+repo+"/issues", len(issues))

	out := IssueList{Issues: make([]Issue, 0, len(issues))}
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		out.Issues = append(out.Issues, mapIssue(is))
	}
	out.Count = len(out.Issues)
	return out, nil
}

// mapIssue uses GetXxx() helpers exclusively to avoid nil pointer panics.
func mapIssue(is *gh.Issue) Issue {
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.GetName())
	}
	return Issue{
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		State:     is.GetState(),
		Author:    is.GetUser().GetLogin(),
		URL:       is.GetHTMLURL(),
		Labels:    labels,
		Comments:  is.GetComments(),
		CreatedAt: is.GetCreatedAt().Time,
		UpdatedAt: is.GetUpdatedAt().Time,
	}
}

func (a *Adapter) createIssue(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	owner, repo, err := splitRepo(p.String("repo"))
	if err != nil {
		return nil, err
	}

	req := &gh.IssueRequest{Title: gh.Ptr(p.String("title"))}
	if body := p.String("body"); body != "" {
		req.Body = gh.Ptr(body)
	}
	if labels := p.StringSlice("labels"); len(labels) > 0 {
		req.Labels = &labels
	}
	if assignees := p.StringSlice("assignees"); len(assignees) > 0 {
		req.Assignees = &assignees
	}

	issue, resp, err := a.client(cred.AccessToken).Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, a.translate(err)
	}
	a.logRateLimit(resp, owner+"/"+repo+"/issues", 1)

	return CreatedIssue{Number: issue.GetNumber(), URL: issue.GetHTMLURL(), State: issue.GetState()}, nil
}

func (a *Adapter) addComment(ctx context.Context, cred model.CredentialRecord, p model.Payload) (any, error) {
	owner, repo, err := splitRepo(p.String("repo"))
	if err != nil {
		return nil, err
	}
	number := p.Int("number")
	if number < 1 {
		return nil, model.PayloadValidation("number must be a positive issue or pull request number")
	}

	comment, resp, err := a.client(cred.AccessToken).Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{
		Body: gh.Ptr(p.String("body")),
	})
	if err != nil {
		return nil, a.translate(err)
	}
	a.logRateLimit(resp, owner+"/"+repo+"/comments", 1)

	return Comment{ID: comment.GetID(), URL: comment.GetHTMLURL()}, nil
}
