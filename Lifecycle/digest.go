package Lifecycle

import (
	"context"
	"fmt"
	"strings"

	"Pitstop/Models"
)

// Digest is a read-only summary of outstanding work for staff channels.
type Digest struct {
	Date           string            `json:"date"`
	Overdue        []Models.TaskView `json:"overdue"`
	AwaitingReview []Models.TaskView `json:"awaiting_review"`
	UrgentIssues   []Models.Issue    `json:"urgent_issues"`
}

func (d *Digest) Empty() bool {
	return len(d.Overdue) == 0 && len(d.AwaitingReview) == 0 && len(d.UrgentIssues) == 0
}

func (e *Engine) BuildDigest(ctx context.Context) (*Digest, error) {
	today := e.Today()
	d := &Digest{Date: today}

	open := []string{Models.TaskPending, Models.TaskInProgress}
	if err := taskViews(e.db(ctx)).
		Where("maintenance_tasks.due_date < ? AND maintenance_tasks.status IN ?", today, open).
		Order(taskViewOrder).Scan(&d.Overdue).Error; err != nil {
		return nil, fmt.Errorf("digest overdue: %w", err)
	}
	for i := range d.Overdue {
		d.Overdue[i].Overdue = true
	}
	if err := taskViews(e.db(ctx)).
		Where("maintenance_tasks.status = ?", Models.TaskCompleted).
		Order(taskViewOrder).Scan(&d.AwaitingReview).Error; err != nil {
		return nil, fmt.Errorf("digest awaiting review: %w", err)
	}
	if err := e.db(ctx).
		Where("status IN ? AND severity IN ?",
			[]string{Models.IssueOpen, Models.IssueInProgress},
			[]Models.Severity{Models.SeverityHigh, Models.SeverityCritical}).
		Order("CASE severity WHEN 'CRITICAL' THEN 0 ELSE 1 END, created_at").
		Find(&d.UrgentIssues).Error; err != nil {
		return nil, fmt.Errorf("digest issues: %w", err)
	}
	return d, nil
}

// Render formats the digest as plain text for chat and mail.
func (d *Digest) Render(venue string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s open work*\n", venue)
	fmt.Fprintf(&b, "Last Updated: %s\n\n", d.Date)

	if d.Empty() {
		b.WriteString("All clear.\n")
		return b.String()
	}

	if len(d.Overdue) > 0 {
		fmt.Fprintf(&b, "Overdue tasks (%d)\n", len(d.Overdue))
		for _, t := range d.Overdue {
			fmt.Fprintf(&b, "- #%d %s %s at %s / %s, due %s, %s\n",
				t.ID, t.TaskType, t.EquipmentName, t.ZoneName, t.WorkstationName, t.DueDate, orNone(t.Assignee))
		}
		b.WriteString("\n")
	}
	if len(d.AwaitingReview) > 0 {
		fmt.Fprintf(&b, "Awaiting review (%d)\n", len(d.AwaitingReview))
		for _, t := range d.AwaitingReview {
			fmt.Fprintf(&b, "- #%d %s %s by %s\n", t.ID, t.TaskType, t.EquipmentName, t.CompletedBy)
		}
		b.WriteString("\n")
	}
	if len(d.UrgentIssues) > 0 {
		fmt.Fprintf(&b, "Urgent issues (%d)\n", len(d.UrgentIssues))
		for _, i := range d.UrgentIssues {
			fmt.Fprintf(&b, "- #%d [%s] %s at %s / %s, %s\n",
				i.ID, i.Severity, i.Title, i.ZoneName, i.WorkstationName, i.Status)
		}
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "unassigned"
	}
	return s
}
