// Package completion implements the Completion Workflow (spec §4.I): the
// ordered push → PR → ticket-transition → comment sequence the Agent Loop
// runs once it observes PROJECT_SIGNED_OFF on a ticket-bound Session.
//
// Grounded on original_source/shared/workflow.py's complete_jira_ticket:
// push is the only abort-gating step (no point opening a PR or touching
// the ticket if nothing reached the remote); every step after it is
// best-effort and runs regardless of whether an earlier best-effort step
// failed, matching spec §7's error taxonomy ("Best-effort: log and move
// on... PR creation, ticket transition, comment add").
package completion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/re-cinq/foreman/internal/adapters/pr"
	"github.com/re-cinq/foreman/internal/adapters/ticket"
	"github.com/re-cinq/foreman/internal/gitsafe"
)

const (
	prDescriptionFile = "PR_DESCRIPTION.md"
	jiraCommentFile   = "JIRA_COMMENT.txt"
)

// Notifier is a best-effort event sink (matches internal/sprint.Notifier's
// shape so callers can share one implementation).
type Notifier func(event, message string)

// Workflow wires the Git Safety Layer and the Ticket/PR adapters into the
// ordered completion sequence.
type Workflow struct {
	Repo       *gitsafe.Repo
	Tickets    *ticket.Client
	PRs        *pr.Client
	TicketKey  string
	DoneStatus string
	Notify     Notifier
}

func (w *Workflow) notify(event, msg string) {
	if w.Notify != nil {
		w.Notify(event, msg)
	}
}

// Result records what each step of the sequence actually did, for tests
// and logging.
type Result struct {
	Pushed    bool
	PRURL     string
	Transitioned bool
	Commented bool
}

// Run executes the completion sequence. A failure to determine the current
// branch, or a failed or refused push, aborts the remaining steps and is
// returned as an error; every subsequent step is best-effort and its failure
// is reported via Notify, never returned.
func (w *Workflow) Run(ctx context.Context, projectDir string) (Result, error) {
	var result Result

	branch, err := w.Repo.CurrentBranch()
	if err != nil {
		return result, fmt.Errorf("completion workflow: determining current branch: %w", err)
	}

	pushed, err := w.Repo.Push("")
	if err != nil || !pushed {
		return result, fmt.Errorf("completion workflow: push failed or refused for branch %s: %w", branch, err)
	}
	result.Pushed = true

	prText := w.createPR(ctx, projectDir, branch, &result)
	w.transitionTicket(ctx, &result)
	w.addComment(ctx, projectDir, prText, &result)

	return result, nil
}

func (w *Workflow) createPR(ctx context.Context, projectDir, branch string, result *Result) string {
	if w.PRs == nil {
		return fmt.Sprintf("Manual PR required (Branch: %s)", branch)
	}

	remoteURL, err := w.Repo.RemoteURL("origin")
	if err != nil {
		w.notify("error", fmt.Sprintf("completion: reading origin remote: %s", err))
		return fmt.Sprintf("Manual PR required (Branch: %s)", branch)
	}
	host, owner, repo, ok := pr.ParseRemote(remoteURL)
	if !ok {
		w.notify("error", fmt.Sprintf("completion: could not parse remote %q", remoteURL))
		return fmt.Sprintf("Manual PR required (Branch: %s)", branch)
	}
	w.PRs.Host = host

	base := "main"
	if meta, err := w.PRs.RepoMetadata(ctx, owner, repo); err == nil && meta.DefaultBranch != "" {
		base = meta.DefaultBranch
	}
	if base == branch {
		w.notify("error", fmt.Sprintf("completion: branch %s already is the default branch, skipping PR", branch))
		return fmt.Sprintf("Manual PR required (Branch: %s)", branch)
	}

	body := fmt.Sprintf("Automated PR for Jira Ticket %s.", w.TicketKey)
	if data, err := os.ReadFile(filepath.Join(projectDir, prDescriptionFile)); err == nil {
		body = string(data)
	}

	url, err := w.PRs.Create(ctx, owner, repo, branch, base, fmt.Sprintf("Fixes %s", w.TicketKey), body)
	if err != nil || url == "" {
		w.notify("error", fmt.Sprintf("completion: PR creation failed: %v", err))
		return fmt.Sprintf("Manual PR required (Branch: %s)", branch)
	}
	result.PRURL = url
	w.notify("project_completion", fmt.Sprintf("Pull request created: %s", url))
	return url
}

func (w *Workflow) transitionTicket(ctx context.Context, result *Result) {
	if w.Tickets == nil || w.TicketKey == "" {
		return
	}
	if err := w.Tickets.Transition(ctx, w.TicketKey, w.DoneStatus); err != nil {
		w.notify("error", fmt.Sprintf("completion: transitioning %s to %s: %s", w.TicketKey, w.DoneStatus, err))
		return
	}
	result.Transitioned = true
}

func (w *Workflow) addComment(ctx context.Context, projectDir, prText string, result *Result) {
	if w.Tickets == nil || w.TicketKey == "" {
		return
	}

	body := fmt.Sprintf("Agent has completed the work. Please review.\nPR: %s", prText)
	if data, err := os.ReadFile(filepath.Join(projectDir, jiraCommentFile)); err == nil {
		body = string(data)
	}

	if issue, err := w.Tickets.Get(ctx, w.TicketKey); err == nil && issue != nil {
		for _, c := range issue.Comments {
			if prText != "" && strings.Contains(c.Body, prText) {
				result.Commented = true
				return
			}
		}
	}

	if err := w.Tickets.Comment(ctx, w.TicketKey, body); err != nil {
		w.notify("error", fmt.Sprintf("completion: commenting on %s: %s", w.TicketKey, err))
		return
	}
	result.Commented = true
}
