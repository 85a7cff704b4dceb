package Reports

import (
	"testing"
	"time"

	"Pitstop/Models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWorkbook(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	completed := time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC)
	issueID := uint(7)
	tasks := []Models.TaskView{
		{
			ID: 3, DueDate: "2024-01-31", TaskType: "CLEANING", Status: Models.TaskCompleted,
			EquipmentName: "PC-A1", EquipmentType: "PC", ZoneName: "Main Hall", WorkstationName: "A1",
			Assignee: "emp-1", CompletedAt: &completed, CompletedBy: "emp-1", ReworkCount: 1,
			LinkedIssueID: &issueID,
		},
		{ID: 4, DueDate: "2024-01-20", TaskType: "CLEANING", Status: Models.TaskPending, Overdue: true, EquipmentName: "PC-A2"},
	}
	assignee := "tech-1"
	issues := []Models.Issue{{
		Title: "Fan rattles", Severity: Models.SeverityHigh, Status: Models.IssueOpen,
		Assignee: &assignee, ReporterID: "emp-1",
	}}
	issues[0].ID = 7
	issues[0].CreatedAt = time.Date(2024, 1, 30, 23, 15, 0, 0, time.UTC)

	buf, err := Workbook(tasks, issues, berlin)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{TasksSheet, IssuesSheet}, f.GetSheetList())

	rows, err := f.GetRows(TasksSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, taskHeaders, rows[0])
	assert.Equal(t, "3", rows[1][0])
	assert.Equal(t, "2024-01-31 10:30", rows[1][10])
	assert.Equal(t, "#7", rows[1][13])
	assert.Equal(t, "yes", rows[2][4])

	issueRows, err := f.GetRows(IssuesSheet)
	require.NoError(t, err)
	require.Len(t, issueRows, 2)
	assert.Equal(t, "2024-01-31 00:15", issueRows[1][1])
	assert.Equal(t, "HIGH", issueRows[1][2])
	assert.Equal(t, "tech-1", issueRows[1][8])
}

func TestWorkbook_Empty(t *testing.T) {
	buf, err := Workbook(nil, nil, time.UTC)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(TasksSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
