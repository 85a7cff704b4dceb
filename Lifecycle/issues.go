package Lifecycle

import (
	"context"
	"fmt"
	"strings"

	"Pitstop/Models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OpenIssueInput struct {
	EquipmentID    uint
	Title          string
	Description    string
	Severity       Models.Severity
	LinkedTaskID   *uint
	IdempotencyKey string
}

type IssueFilter struct {
	Status      string
	Severity    Models.Severity
	EquipmentID uint
	Assignee    string
}

type issueFields struct {
	Title        string
	Description  string
	Severity     Models.Severity
	LinkedTaskID *uint
}

func validateDraft(d *Models.IssueDraft) error {
	if strings.TrimSpace(d.Title) == "" {
		return Models.ErrTitleRequired
	}
	if !d.Severity.Valid() {
		return Models.ErrInvalidSeverity
	}
	return nil
}

func (e *Engine) OpenIssue(ctx context.Context, in OpenIssueInput, reporter string) (*Models.Issue, error) {
	if err := validateDraft(&Models.IssueDraft{Title: in.Title, Severity: in.Severity}); err != nil {
		return nil, err
	}

	var issue *Models.Issue
	replayed := false
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		replayID, fresh, err := claimRequest(tx, "issue.open", in.IdempotencyKey)
		if err != nil {
			return err
		}
		if !fresh {
			replayed = true
			issue = &Models.Issue{}
			return tx.First(issue, replayID).Error
		}

		var eq Models.Equipment
		if err := tx.First(&eq, in.EquipmentID).Error; err != nil {
			return notFound(err, Models.ErrEquipmentNotFound)
		}
		if in.LinkedTaskID != nil {
			var task Models.MaintenanceTask
			if err := tx.First(&task, *in.LinkedTaskID).Error; err != nil {
				return notFound(err, Models.ErrTaskNotFound)
			}
			if task.EquipmentID != eq.ID {
				return Models.ErrLinkMismatch
			}
		}

		var ws *Models.Workstation
		if eq.WorkstationID != nil {
			if ws, err = loadWorkstation(tx, *eq.WorkstationID); err != nil {
				return fmt.Errorf("load workstation: %w", err)
			}
		}

		issue, err = e.openIssueTx(tx, &eq, ws, issueFields{
			Title:        in.Title,
			Description:  in.Description,
			Severity:     in.Severity,
			LinkedTaskID: in.LinkedTaskID,
		}, reporter)
		if err != nil {
			return err
		}
		if in.LinkedTaskID != nil {
			if err := tx.Model(&Models.MaintenanceTask{}).
				Where("id = ? AND linked_issue_id IS NULL", *in.LinkedTaskID).
				Update("linked_issue_id", issue.ID).Error; err != nil {
				return err
			}
		}
		return settleRequest(tx, "issue.open", in.IdempotencyKey, issue.ID)
	})
	if err != nil {
		return nil, err
	}
	if !replayed {
		e.notifyIssue(ctx, issue, "new report")
	}
	return issue, nil
}

// openIssueTx creates the issue with the given placement denormalized onto it
// and writes its opening system comment.
func (e *Engine) openIssueTx(tx *gorm.DB, eq *Models.Equipment, ws *Models.Workstation, f issueFields, reporter string) (*Models.Issue, error) {
	issue := &Models.Issue{
		EquipmentID:  eq.ID,
		ReporterID:   reporter,
		Title:        strings.TrimSpace(f.Title),
		Description:  f.Description,
		Severity:     f.Severity,
		Status:       Models.IssueOpen,
		LinkedTaskID: f.LinkedTaskID,
	}
	if ws != nil {
		issue.WorkstationName = ws.Name
		issue.ZoneName = ws.Zone.Name
	}
	if err := tx.Create(issue).Error; err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	if err := e.systemComment(tx, issue.ID, fmt.Sprintf("Issue opened by %s with severity %s", reporter, issue.Severity)); err != nil {
		return nil, err
	}
	return issue, nil
}

func (e *Engine) systemComment(tx *gorm.DB, issueID uint, content string) error {
	comment := Models.IssueComment{
		IssueID:         issueID,
		Content:         content,
		IsSystemMessage: true,
		CreatedAt:       e.Now(),
	}
	if err := tx.Create(&comment).Error; err != nil {
		return fmt.Errorf("write audit comment: %w", err)
	}
	return nil
}

func lockIssue(tx *gorm.DB, issueID uint) (*Models.Issue, error) {
	var issue Models.Issue
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&issue, issueID).Error; err != nil {
		return nil, notFound(err, Models.ErrIssueNotFound)
	}
	return &issue, nil
}

// ChangeIssueStatus moves an issue along its workflow. Resolution goes through
// ResolveIssue because it needs notes. Setting the current status again is a no-op.
func (e *Engine) ChangeIssueStatus(ctx context.Context, issueID uint, status, actor, key string) (*Models.Issue, error) {
	if !Models.ValidIssueStatus(status) {
		return nil, Models.ErrInvalidStatus
	}

	var issue *Models.Issue
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		action := issueAction("status", issueID)
		_, fresh, err := claimRequest(tx, action, key)
		if err != nil {
			return err
		}
		if issue, err = lockIssue(tx, issueID); err != nil {
			return err
		}
		if !fresh || issue.Status == status {
			return nil
		}

		from := issue.Status
		if status == Models.IssueResolved && from == Models.IssueInProgress {
			return Models.ErrNotesRequired
		}
		if !ValidIssueTransition(from, status) {
			return Models.InvalidTransition(from, "change status to "+status)
		}

		updates := map[string]interface{}{"status": status}
		switch status {
		case Models.IssueClosed:
			now := e.Now()
			updates["closed_at"] = &now
		case Models.IssueOpen:
			updates["closed_at"] = nil
			updates["resolved_at"] = nil
		case Models.IssueInProgress:
			updates["resolved_at"] = nil
		}
		if err := tx.Model(issue).Updates(updates).Error; err != nil {
			return fmt.Errorf("update issue status: %w", err)
		}
		if err := e.systemComment(tx, issue.ID, fmt.Sprintf("Status changed from %s to %s by %s", from, status, actor)); err != nil {
			return err
		}
		if err := settleRequest(tx, action, key, issue.ID); err != nil {
			return err
		}
		return tx.First(issue, issue.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// AssignIssue sets or clears the issue's assignee.
func (e *Engine) AssignIssue(ctx context.Context, issueID uint, party *string, actor string) (*Models.Issue, error) {
	value := partyValue(party)

	var issue *Models.Issue
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if issue, err = lockIssue(tx, issueID); err != nil {
			return err
		}
		current := ""
		if issue.Assignee != nil {
			current = *issue.Assignee
		}
		if current == value {
			return nil
		}

		var next *string
		content := fmt.Sprintf("Unassigned from %s by %s", current, actor)
		if value != "" {
			next = &value
			content = fmt.Sprintf("Assigned to %s by %s", value, actor)
		}
		if err := tx.Model(issue).Update("assignee", next).Error; err != nil {
			return fmt.Errorf("update issue assignee: %w", err)
		}
		issue.Assignee = next
		return e.systemComment(tx, issue.ID, content)
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (e *Engine) ChangeSeverity(ctx context.Context, issueID uint, severity Models.Severity, actor string) (*Models.Issue, error) {
	if !severity.Valid() {
		return nil, Models.ErrInvalidSeverity
	}

	var issue *Models.Issue
	escalated := false
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if issue, err = lockIssue(tx, issueID); err != nil {
			return err
		}
		from := issue.Severity
		if from == severity {
			return nil
		}
		if err := tx.Model(issue).Update("severity", severity).Error; err != nil {
			return fmt.Errorf("update issue severity: %w", err)
		}
		issue.Severity = severity
		escalated = severity.Urgent() && !from.Urgent()
		return e.systemComment(tx, issue.ID, fmt.Sprintf("Severity changed from %s to %s by %s", from, severity, actor))
	})
	if err != nil {
		return nil, err
	}
	if escalated {
		e.notifyIssue(ctx, issue, "escalated")
	}
	return issue, nil
}

// ResolveIssue closes out work on an IN_PROGRESS issue with notes and optional photos.
func (e *Engine) ResolveIssue(ctx context.Context, issueID uint, notes string, photos, failedUploads []string, actor string) (*Models.Issue, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, Models.ErrNotesRequired
	}
	e.logFailedUploads("resolve_issue", issueID, failedUploads)

	var issue *Models.Issue
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if issue, err = lockIssue(tx, issueID); err != nil {
			return err
		}
		if issue.Status != Models.IssueInProgress {
			return Models.InvalidTransition(issue.Status, "resolve")
		}
		now := e.Now()
		issue.Status = Models.IssueResolved
		issue.ResolutionNotes = notes
		issue.ResolutionPhotos = cleanPhotos(photos)
		issue.ResolvedAt = &now
		if err := tx.Model(issue).Select("status", "resolution_notes", "resolution_photos", "resolved_at").
			Updates(issue).Error; err != nil {
			return fmt.Errorf("resolve issue: %w", err)
		}
		return e.systemComment(tx, issue.ID, fmt.Sprintf("Status changed from %s to %s by %s: %s",
			Models.IssueInProgress, Models.IssueResolved, actor, notes))
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (e *Engine) AddComment(ctx context.Context, issueID uint, author, content, key string) (*Models.IssueComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, Models.ErrContentRequired
	}

	comment := &Models.IssueComment{}
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		action := issueAction("comment", issueID)
		replayID, fresh, err := claimRequest(tx, action, key)
		if err != nil {
			return err
		}
		if !fresh {
			return tx.First(comment, replayID).Error
		}
		if _, err := lockIssue(tx, issueID); err != nil {
			return err
		}
		comment.IssueID = issueID
		comment.Content = content
		comment.CreatedAt = e.Now()
		if author != "" {
			comment.AuthorID = &author
		}
		if err := tx.Create(comment).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return settleRequest(tx, action, key, comment.ID)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (e *Engine) ListComments(ctx context.Context, issueID uint) ([]Models.IssueComment, error) {
	if _, err := e.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	var comments []Models.IssueComment
	if err := e.db(ctx).Where("issue_id = ?", issueID).Order("created_at, id").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

func (e *Engine) GetIssue(ctx context.Context, issueID uint) (*Models.Issue, error) {
	var issue Models.Issue
	if err := e.db(ctx).First(&issue, issueID).Error; err != nil {
		return nil, notFound(err, Models.ErrIssueNotFound)
	}
	return &issue, nil
}

func (e *Engine) ListIssues(ctx context.Context, f IssueFilter) ([]Models.Issue, error) {
	q := e.db(ctx).Order("created_at DESC, id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.EquipmentID != 0 {
		q = q.Where("equipment_id = ?", f.EquipmentID)
	}
	if f.Assignee != "" {
		q = q.Where("assignee = ?", f.Assignee)
	}
	var issues []Models.Issue
	if err := q.Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

func (e *Engine) logFailedUploads(operation string, id uint, failed []string) {
	if len(failed) == 0 {
		return
	}
	e.Log.Warn("photo uploads failed, continuing with the rest",
		zap.String("operation", operation),
		zap.Uint("id", id),
		zap.Strings("failed", failed),
		zap.Error(Models.DependencyFailure("upload", fmt.Errorf("%d files not stored", len(failed)))))
}
