// Package Reports renders maintenance records as spreadsheets.
package Reports

import (
	"bytes"
	"fmt"
	"time"

	"Pitstop/Models"

	"github.com/xuri/excelize/v2"
)

const (
	TasksSheet  = "Tasks"
	IssuesSheet = "Issues"
)

var taskHeaders = []string{
	"Task ID", "Due Date", "Type", "Status", "Overdue", "Equipment", "Equipment Type",
	"Zone", "Workstation", "Assignee", "Completed At", "Completed By", "Rework Count", "Linked Issue",
}

var issueHeaders = []string{
	"Issue ID", "Opened", "Severity", "Status", "Title", "Zone", "Workstation",
	"Reporter", "Assignee", "Resolved At", "Resolution Notes",
}

// Workbook builds the export for a period. Timestamps are written as venue-local
// wall-clock text so the sheet reads the same wherever it is opened.
func Workbook(tasks []Models.TaskView, issues []Models.Issue, loc *time.Location) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TasksSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(IssuesSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	taskRows := make([][]interface{}, 0, len(tasks))
	for _, t := range tasks {
		linked := ""
		if t.LinkedIssueID != nil {
			linked = fmt.Sprintf("#%d", *t.LinkedIssueID)
		}
		overdue := ""
		if t.Overdue {
			overdue = "yes"
		}
		taskRows = append(taskRows, []interface{}{
			t.ID, t.DueDate, t.TaskType, t.Status, overdue, t.EquipmentName, t.EquipmentType,
			t.ZoneName, t.WorkstationName, t.Assignee, localTime(t.CompletedAt, loc), t.CompletedBy,
			t.ReworkCount, linked,
		})
	}
	if err := writeSheet(f, TasksSheet, taskHeaders, taskRows, headerStyle); err != nil {
		return nil, err
	}

	issueRows := make([][]interface{}, 0, len(issues))
	for _, i := range issues {
		assignee := ""
		if i.Assignee != nil {
			assignee = *i.Assignee
		}
		opened := i.CreatedAt
		issueRows = append(issueRows, []interface{}{
			i.ID, localTime(&opened, loc), string(i.Severity), i.Status, i.Title, i.ZoneName,
			i.WorkstationName, i.ReporterID, assignee, localTime(i.ResolvedAt, loc), i.ResolutionNotes,
		})
	}
	if err := writeSheet(f, IssuesSheet, issueHeaders, issueRows, headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("%s header: %w", sheet, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for r, values := range rows {
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("%s row %d: %w", sheet, r+2, err)
			}
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func localTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
