package Lifecycle

import (
	"slices"

	"Pitstop/Models"
)

// taskTransitions maps a workflow action to the task states it may start from.
var taskTransitions = map[string][]string{
	"assign":   {Models.TaskPending, Models.TaskInProgress},
	"start":    {Models.TaskPending},
	"complete": {Models.TaskPending, Models.TaskInProgress},
	"verify":   {Models.TaskCompleted},
	"reject":   {Models.TaskCompleted},
	"unverify": {Models.TaskVerified},
	"skip":     {Models.TaskPending},
	"delete":   {Models.TaskPending, Models.TaskCompleted, Models.TaskRejected},
}

// issueTransitions maps a target issue status to the statuses it may be reached from.
var issueTransitions = map[string][]string{
	Models.IssueInProgress: {Models.IssueOpen, Models.IssueResolved},
	Models.IssueResolved:   {Models.IssueInProgress},
	Models.IssueClosed:     {Models.IssueResolved},
	Models.IssueOpen:       {Models.IssueClosed},
}

func ValidTaskTransition(action, from string) bool {
	return slices.Contains(taskTransitions[action], from)
}

func ValidIssueTransition(from, to string) bool {
	return slices.Contains(issueTransitions[to], from)
}
