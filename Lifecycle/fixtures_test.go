package Lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"Pitstop/Models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testZone = "Europe/Berlin"

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type venue struct {
	zone   Models.Zone
	w1, w2 Models.Workstation
	// w3 has no responsible party, so nothing placed there is maintained.
	w3 Models.Workstation
	e  Models.Equipment
	f  Models.Equipment
}

type harness struct {
	*Engine
	ctx      context.Context
	now      time.Time
	notifier *recordingNotifier
	v        venue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, Models.Migrate(db))

	h := &harness{
		ctx:      context.Background(),
		now:      time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
	}
	engine, err := New(db, nil, Settings{
		TimeZone: testZone,
		Notifier: h.notifier,
		Now:      func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.Engine = engine

	h.v.zone = Models.Zone{Name: "Main Hall"}
	require.NoError(t, db.Create(&h.v.zone).Error)
	h.v.w1 = Models.Workstation{Name: "W1", ZoneID: h.v.zone.ID, ResponsibleParty: "emp-1"}
	h.v.w2 = Models.Workstation{Name: "W2", ZoneID: h.v.zone.ID, ResponsibleParty: DefaultSharedPoolID}
	h.v.w3 = Models.Workstation{Name: "W3", ZoneID: h.v.zone.ID}
	require.NoError(t, db.Create(&h.v.w1).Error)
	require.NoError(t, db.Create(&h.v.w2).Error)
	require.NoError(t, db.Create(&h.v.w3).Error)

	h.v.e = h.addEquipment(t, "E", Models.EquipmentPC, &h.v.w1.ID, 30, "2024-01-01")
	h.v.f = h.addEquipment(t, "F", Models.EquipmentPC, &h.v.w2.ID, 30, "2024-01-01")
	return h
}

func (h *harness) addEquipment(t *testing.T, name string, typ Models.EquipmentType, ws *uint, interval int, lastServiced string) Models.Equipment {
	t.Helper()
	eq := Models.Equipment{
		Name:                 name,
		Type:                 typ,
		Active:               true,
		MaintenanceEnabled:   true,
		CleaningIntervalDays: interval,
		WorkstationID:        ws,
	}
	require.NoError(t, h.DB.Create(&eq).Error)
	if lastServiced != "" {
		_, err := h.SetMaintenanceConfig(h.ctx, eq.ID, MaintenanceConfig{IntervalDays: interval, LastServiced: &lastServiced})
		require.NoError(t, err)
	}
	return eq
}

// engineIn is a second engine over the harness store for a venue in tz.
func (h *harness) engineIn(t *testing.T, tz string) *Engine {
	t.Helper()
	engine, err := New(h.DB, nil, Settings{
		TimeZone: tz,
		Now:      func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return engine
}

func (h *harness) reload(t *testing.T, id uint) Models.Equipment {
	t.Helper()
	var eq Models.Equipment
	require.NoError(t, h.DB.First(&eq, id).Error)
	return eq
}

func (h *harness) task(t *testing.T, id uint) Models.MaintenanceTask {
	t.Helper()
	var task Models.MaintenanceTask
	require.NoError(t, h.DB.First(&task, id).Error)
	return task
}

// planOne creates the January cleaning plan and returns E's task.
func (h *harness) planOne(t *testing.T) Models.MaintenanceTask {
	t.Helper()
	_, err := h.EnsurePlan(h.ctx, "2024-01-31", "2024-02-05", Models.TaskCleaning)
	require.NoError(t, err)
	var task Models.MaintenanceTask
	require.NoError(t, h.DB.Where("equipment_id = ?", h.v.e.ID).First(&task).Error)
	return task
}

func ptr[T any](v T) *T {
	return &v
}
