package Lifecycle

import (
	"context"
	"fmt"
	"strconv"

	"Pitstop/Models"

	"go.uber.org/zap"
)

type Notification struct {
	// Recipients are employee ids. Empty means every registered device.
	Recipients []string
	Title      string
	Body       string
	Data       map[string]string
}

// Notifier pushes a message to staff devices. Failures never undo the
// state change that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

func (e *Engine) notify(ctx context.Context, n Notification) {
	if err := e.Notifier.Notify(ctx, n); err != nil {
		e.Log.Warn("notification not delivered",
			zap.String("title", n.Title),
			zap.Error(Models.DependencyFailure("push", err)))
	}
}

func (e *Engine) notifyIssue(ctx context.Context, issue *Models.Issue, headline string) {
	if !issue.Severity.Urgent() {
		return
	}
	var recipients []string
	if issue.Assignee != nil && *issue.Assignee != "" && *issue.Assignee != e.sharedPoolID {
		recipients = []string{*issue.Assignee}
	}
	e.notify(ctx, Notification{
		Recipients: recipients,
		Title:      fmt.Sprintf("%s issue: %s", issue.Severity, headline),
		Body:       fmt.Sprintf("%s (%s / %s)", issue.Title, issue.ZoneName, issue.WorkstationName),
		Data: map[string]string{
			"type":     "issue",
			"issue_id": strconv.FormatUint(uint64(issue.ID), 10),
			"severity": string(issue.Severity),
		},
	})
}

func (e *Engine) notifyRejection(ctx context.Context, task *Models.MaintenanceTask, performer, reason string) {
	var recipients []string
	if performer != "" && performer != e.sharedPoolID {
		recipients = []string{performer}
	}
	e.notify(ctx, Notification{
		Recipients: recipients,
		Title:      "Task sent back for rework",
		Body:       fmt.Sprintf("%s %s at %s: %s", task.TaskType, task.DueDate, task.WorkstationName, reason),
		Data: map[string]string{
			"type":    "task_rejected",
			"task_id": strconv.FormatUint(uint64(task.ID), 10),
		},
	})
}
