package Lifecycle

import (
	"errors"
	"testing"

	"Pitstop/Clock"
	"Pitstop/Models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlan_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addEquipment(t, "G", Models.EquipmentMonitor, &h.v.w1.ID, 7, "2024-01-20")
	h.addEquipment(t, "never", Models.EquipmentKeyboard, &h.v.w2.ID, 14, "")

	first, err := h.EnsurePlan(h.ctx, "2024-01-25", "2024-02-10", Models.TaskCleaning)
	require.NoError(t, err)
	require.Empty(t, first.Errors)

	var before []Models.MaintenanceTask
	require.NoError(t, h.DB.Order("id").Find(&before).Error)

	second, err := h.EnsurePlan(h.ctx, "2024-01-25", "2024-02-10", Models.TaskCleaning)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, first.Created, second.Existing)

	// An overlapping range does not duplicate anything either.
	third, err := h.EnsurePlan(h.ctx, "2024-02-01", "2024-02-10", Models.TaskCleaning)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Created)

	var after []Models.MaintenanceTask
	require.NoError(t, h.DB.Order("id").Find(&after).Error)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].DueDate, after[i].DueDate)
	}
}

func TestEnsurePlan_CompleteVerifyScenario(t *testing.T) {
	h := newHarness(t)

	res, err := h.EnsurePlan(h.ctx, "2024-01-31", "2024-02-05", Models.TaskCleaning)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created) // E and F share the same schedule

	var tasks []Models.MaintenanceTask
	require.NoError(t, h.DB.Where("equipment_id = ?", h.v.e.ID).Find(&tasks).Error)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "2024-01-31", task.DueDate)
	assert.Equal(t, "W1", task.WorkstationName)
	assert.Equal(t, "Main Hall", task.ZoneName)
	assert.Equal(t, "emp-1", task.Assignee)

	done, err := h.CompleteTask(h.ctx, task.ID, CompleteInput{Photos: []string{"https://cdn/u1.jpg"}}, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, Models.TaskCompleted, done.Task.Status)

	eq := h.reload(t, h.v.e.ID)
	require.NotNil(t, eq.LastCleanedAt)
	day, err := Clock.LocalDate(*eq.LastCleanedAt, testZone)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", day)

	verified, err := h.VerifyTask(h.ctx, task.ID, "rev-1", "looks clean")
	require.NoError(t, err)
	assert.Equal(t, Models.TaskVerified, verified.Status)

	again, err := h.EnsurePlan(h.ctx, "2024-01-31", "2024-02-05", Models.TaskCleaning)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
}

func TestEnsurePlan_OverdueDeviceGetsOneTask(t *testing.T) {
	h := newHarness(t)
	stale := h.addEquipment(t, "stale", Models.EquipmentHeadset, &h.v.w1.ID, 30, "2023-06-01")

	_, err := h.EnsurePlan(h.ctx, "2024-01-31", "2024-02-05", Models.TaskCleaning)
	require.NoError(t, err)
	_, err = h.EnsurePlan(h.ctx, "2024-03-01", "2024-03-31", Models.TaskCleaning)
	require.NoError(t, err)

	var tasks []Models.MaintenanceTask
	require.NoError(t, h.DB.Where("equipment_id = ?", stale.ID).Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, "2023-07-01", tasks[0].DueDate)
}

func TestEnsurePlan_NeverServicedUsesPlanStart(t *testing.T) {
	h := newHarness(t)
	fresh := h.addEquipment(t, "fresh", Models.EquipmentMouse, &h.v.w2.ID, 10, "")

	_, err := h.EnsurePlan(h.ctx, "2024-02-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	_, err = h.EnsurePlan(h.ctx, "2024-02-10", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)

	var tasks []Models.MaintenanceTask
	require.NoError(t, h.DB.Where("equipment_id = ?", fresh.ID).Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, "2024-02-01", tasks[0].DueDate)
	assert.Equal(t, Models.InitialCycle, tasks[0].CycleKey)
	assert.Equal(t, DefaultSharedPoolID, tasks[0].Assignee)
}

func TestEnsurePlan_ThermalScheduleOnlyForEligibleDevices(t *testing.T) {
	h := newHarness(t)
	_, err := h.SetMaintenanceConfig(h.ctx, h.v.e.ID, MaintenanceConfig{
		IntervalDays: 30,
		Thermal:      &ThermalConfig{IntervalDays: ptr(180), ChangedOn: ptr("2023-08-01"), Material: ptr("MX-6")},
	})
	require.NoError(t, err)

	res, err := h.EnsurePlan(h.ctx, "2024-01-01", "2024-01-31", Models.TaskMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	var task Models.MaintenanceTask
	require.NoError(t, h.DB.Where("task_type = ?", Models.TaskMaintenance).First(&task).Error)
	assert.Equal(t, h.v.e.ID, task.EquipmentID)
	assert.Equal(t, "2024-01-28", task.DueDate)
}

func TestEnsurePlan_RejectsBadInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.EnsurePlan(h.ctx, "2024-02-05", "2024-01-31", Models.TaskCleaning)
	assert.True(t, errors.Is(err, Models.ErrInvalidDateRange))

	_, err = h.EnsurePlan(h.ctx, "2024-01-31", "2024-02-05", Models.TaskRepair)
	assert.True(t, errors.Is(err, Models.ErrUnschedulableType))

	_, err = h.EnsurePlan(h.ctx, "31.01.2024", "2024-02-05", Models.TaskCleaning)
	assert.True(t, errors.Is(err, Models.ErrInvalidDate))
}

func (h *harness) tasksOf(t *testing.T, equipmentID uint, status string) []Models.MaintenanceTask {
	t.Helper()
	var tasks []Models.MaintenanceTask
	require.NoError(t, h.DB.Where("equipment_id = ? AND status = ?", equipmentID, status).Order("due_date").Find(&tasks).Error)
	return tasks
}

func TestEnsurePlan_CompletionAwaitingReviewBlocksNextCycle(t *testing.T) {
	h := newHarness(t)
	g := h.addEquipment(t, "G", Models.EquipmentMonitor, &h.v.w1.ID, 7, "2024-01-24")

	_, err := h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	pending := h.tasksOf(t, g.ID, Models.TaskPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "2024-01-31", pending[0].DueDate)

	_, err = h.CompleteTask(h.ctx, pending[0].ID, CompleteInput{Photos: []string{"u1"}}, "emp-1")
	require.NoError(t, err)

	_, err = h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	assert.Empty(t, h.tasksOf(t, g.ID, Models.TaskPending))

	_, err = h.RejectTask(h.ctx, pending[0].ID, "rev-1", "dust left on the stand")
	require.NoError(t, err)

	reopened := h.tasksOf(t, g.ID, Models.TaskPending)
	require.Len(t, reopened, 1)
	assert.Equal(t, pending[0].ID, reopened[0].ID)
	assert.Equal(t, 1, reopened[0].ReworkCount)
}

func TestRejectTask_WithdrawsCyclePlannedAfterVerification(t *testing.T) {
	h := newHarness(t)
	g := h.addEquipment(t, "G", Models.EquipmentMonitor, &h.v.w1.ID, 7, "2024-01-24")

	_, err := h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	first := h.tasksOf(t, g.ID, Models.TaskPending)[0]
	_, err = h.CompleteTask(h.ctx, first.ID, CompleteInput{Photos: []string{"u1"}}, "emp-1")
	require.NoError(t, err)
	_, err = h.VerifyTask(h.ctx, first.ID, "rev-1", "")
	require.NoError(t, err)

	_, err = h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	next := h.tasksOf(t, g.ID, Models.TaskPending)
	require.Len(t, next, 1)
	assert.Equal(t, "2024-02-07", next[0].DueDate)

	_, err = h.UnverifyTask(h.ctx, first.ID, "rev-2", "photo shows the wrong seat")
	require.NoError(t, err)
	_, err = h.RejectTask(h.ctx, first.ID, "rev-2", "redo it")
	require.NoError(t, err)

	pending := h.tasksOf(t, g.ID, Models.TaskPending)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)
	_, err = h.GetTask(h.ctx, next[0].ID)
	assert.True(t, errors.Is(err, Models.ErrTaskNotFound))
}

func TestDeleteReport_WithdrawsLaterCycle(t *testing.T) {
	h := newHarness(t)
	g := h.addEquipment(t, "G", Models.EquipmentMonitor, &h.v.w1.ID, 7, "2024-01-24")

	_, err := h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	first := h.tasksOf(t, g.ID, Models.TaskPending)[0]
	_, err = h.CompleteTask(h.ctx, first.ID, CompleteInput{Photos: []string{"u1"}}, "emp-1")
	require.NoError(t, err)
	_, err = h.VerifyTask(h.ctx, first.ID, "rev-1", "")
	require.NoError(t, err)
	_, err = h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	_, err = h.UnverifyTask(h.ctx, first.ID, "rev-2", "wrong device")
	require.NoError(t, err)

	require.NoError(t, h.DeleteReport(h.ctx, first.ID, "admin"))
	assert.Empty(t, h.tasksOf(t, g.ID, Models.TaskPending))

	_, err = h.EnsurePlan(h.ctx, "2024-01-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	pending := h.tasksOf(t, g.ID, Models.TaskPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "2024-01-31", pending[0].DueDate)
}

func TestEnsurePlan_SkippedCycleResumesSchedule(t *testing.T) {
	h := newHarness(t)
	g := h.addEquipment(t, "G", Models.EquipmentMonitor, &h.v.w1.ID, 7, "2024-01-24")

	_, err := h.EnsurePlan(h.ctx, "2024-01-25", "2024-01-31", Models.TaskCleaning)
	require.NoError(t, err)
	first := h.tasksOf(t, g.ID, Models.TaskPending)[0]
	_, err = h.SkipTask(h.ctx, first.ID, "lead", "seat closed for renovation")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", h.reload(t, g.ID).CleaningSkippedThrough)

	due, err := h.ListDue(h.ctx, "2024-02-06")
	require.NoError(t, err)
	for _, d := range due {
		assert.NotEqual(t, g.ID, d.Equipment.ID)
	}

	res, err := h.EnsurePlan(h.ctx, "2024-02-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	pending := h.tasksOf(t, g.ID, Models.TaskPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "2024-02-07", pending[0].DueDate)
	assert.Equal(t, "2024-02-07", pending[0].CycleKey)

	// A fresh service date replaces the skip anchor.
	eq, err := h.SetMaintenanceConfig(h.ctx, g.ID, MaintenanceConfig{IntervalDays: 7, LastServiced: ptr("2024-02-01")})
	require.NoError(t, err)
	assert.Empty(t, eq.CleaningSkippedThrough)
}

func TestEnsurePlan_SkippedInitialCycle(t *testing.T) {
	h := newHarness(t)
	fresh := h.addEquipment(t, "fresh", Models.EquipmentMouse, &h.v.w2.ID, 10, "")

	_, err := h.EnsurePlan(h.ctx, "2024-02-01", "2024-02-05", Models.TaskCleaning)
	require.NoError(t, err)
	initial := h.tasksOf(t, fresh.ID, Models.TaskPending)
	require.Len(t, initial, 1)
	require.Equal(t, Models.InitialCycle, initial[0].CycleKey)
	_, err = h.SkipTask(h.ctx, initial[0].ID, "lead", "still boxed")
	require.NoError(t, err)

	_, err = h.EnsurePlan(h.ctx, "2024-02-01", "2024-02-29", Models.TaskCleaning)
	require.NoError(t, err)
	pending := h.tasksOf(t, fresh.ID, Models.TaskPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "2024-02-11", pending[0].DueDate)
}
