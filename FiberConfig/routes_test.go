package FiberConfig

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Pitstop/Controllers"
	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type server struct {
	app    *fiber.App
	db     *gorm.DB
	tokens map[int]string
	pc1    uint
}

func newServer(t *testing.T) *server {
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

	_, err = Models.SeedVenue(db, Models.Venue{
		Name:     "Arena",
		TimeZone: "Europe/Berlin",
		Zones: []Models.VenueZone{{
			Name: "Main Hall",
			Workstations: []Models.VenueWorkstation{
				{Name: "W1", ResponsibleParty: "emp-1"},
				{Name: "W2", ResponsibleParty: Lifecycle.DefaultSharedPoolID},
			},
		}},
		Equipment: []Models.VenueEquipment{
			{Name: "PC-1", Type: Models.EquipmentPC, Workstation: "W1"},
			{Name: "PC-2", Type: Models.EquipmentPC, Workstation: "W2"},
		},
	})
	require.NoError(t, err)

	now := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	engine, err := Lifecycle.New(db, zap.NewNop(), Lifecycle.Settings{
		TimeZone: "Europe/Berlin",
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	app := NewApp(zap.NewNop())
	auth := middleware.NewAuth("test-secret")
	SetupRoutes(app, NewHandlers(Controllers.NewHandler(engine, zap.NewNop()), "Arena", nil), auth)

	s := &server{app: app, db: db, tokens: map[int]string{}}
	for level, actor := range map[int]string{middleware.Staff: "emp-1", middleware.Reviewer: "lead", middleware.Admin: "boss"} {
		token, err := auth.Sign(actor, level, time.Hour)
		require.NoError(t, err)
		s.tokens[level] = token
	}
	var pc Models.Equipment
	require.NoError(t, db.Where("name = ?", "PC-1").First(&pc).Error)
	s.pc1 = pc.ID
	return s
}

func (s *server) do(t *testing.T, level int, method, path, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if level > 0 {
		req.Header.Set("Authorization", "Bearer "+s.tokens[level])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body.Error
}

func (s *server) configure(t *testing.T) {
	t.Helper()
	resp, raw := s.do(t, middleware.Admin, "PUT", fmt.Sprintf("/api/equipment/%d/maintenance", s.pc1),
		`{"interval_days":30,"last_serviced":"2024-01-01"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
}

func TestHealthIsPublic(t *testing.T) {
	s := newServer(t)
	resp, raw := s.do(t, 0, "GET", "/api/health", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"today":"2024-01-31"`)
}

func TestPermissionLevels(t *testing.T) {
	s := newServer(t)

	resp, _ := s.do(t, 0, "GET", "/api/tasks?date_from=2024-01-31&date_to=2024-02-05", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, middleware.Staff, "PUT", fmt.Sprintf("/api/equipment/%d/maintenance", s.pc1), `{"interval_days":30}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, middleware.Reviewer, "POST", fmt.Sprintf("/api/equipment/%d/deactivate", s.pc1), `{}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestTaskWorkflowOverHTTP(t *testing.T) {
	s := newServer(t)
	s.configure(t)

	resp, raw := s.do(t, middleware.Staff, "GET", "/api/tasks?date_from=2024-01-31&date_to=2024-02-05&ensure=true", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var tasks []Models.TaskView
	require.NoError(t, json.Unmarshal(raw, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "PC-1", tasks[0].EquipmentName)
	assert.Equal(t, "2024-01-31", tasks[0].DueDate)
	assert.Equal(t, Models.TaskPending, tasks[0].Status)

	complete := fmt.Sprintf("/api/tasks/%d/complete", tasks[0].ID)
	resp, raw = s.do(t, middleware.Staff, "POST", complete, `{"photos":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "evidence_required", errorCode(t, raw))

	body := `{"photos":["https://cdn.example/a.jpg"],"notes":"dusted"}`
	resp, raw = s.do(t, middleware.Staff, "POST", complete, body, "Idempotency-Key", "k-1")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var first Lifecycle.CompleteResult
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.False(t, first.Replayed)

	resp, raw = s.do(t, middleware.Staff, "POST", complete, body, "Idempotency-Key", "k-1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var replay Lifecycle.CompleteResult
	require.NoError(t, json.Unmarshal(raw, &replay))
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Submission.ID, replay.Submission.ID)

	verify := fmt.Sprintf("/api/tasks/%d/verify", tasks[0].ID)
	resp, _ = s.do(t, middleware.Staff, "POST", verify, `{}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, raw = s.do(t, middleware.Reviewer, "POST", verify, `{"note":"looks clean"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	resp, raw = s.do(t, middleware.Reviewer, "POST", verify, `{}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, raw))

	resp, raw = s.do(t, middleware.Staff, "GET", fmt.Sprintf("/api/tasks/%d/history", tasks[0].ID), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history Models.TaskHistory
	require.NoError(t, json.Unmarshal(raw, &history))
	assert.Len(t, history.Submissions, 1)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)

	resp, raw := s.do(t, middleware.Staff, "POST", "/api/issues", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorCode(t, raw))
	assert.Contains(t, string(raw), "equipment_id")

	resp, raw = s.do(t, middleware.Staff, "POST", "/api/issues",
		fmt.Sprintf(`{"equipment_id":%d,"title":"Fan noise","severity":"URGENT"}`, s.pc1))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), "severity must be one of")

	resp, raw = s.do(t, middleware.Staff, "GET", "/api/issues/999", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "issue_not_found", errorCode(t, raw))

	resp, raw = s.do(t, middleware.Staff, "GET", "/api/tasks/abc/history", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_id", errorCode(t, raw))

	resp, raw = s.do(t, middleware.Staff, "GET", "/api/issues?status=DONE", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_status", errorCode(t, raw))

	resp, raw = s.do(t, middleware.Staff, "POST", fmt.Sprintf("/api/equipment/%d/storage", s.pc1), `{}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	resp, raw = s.do(t, middleware.Staff, "POST", fmt.Sprintf("/api/equipment/%d/storage", s.pc1), `{}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "no_op_move", errorCode(t, raw))
}

func TestIssueCommentsOverHTTP(t *testing.T) {
	s := newServer(t)

	resp, raw := s.do(t, middleware.Staff, "POST", "/api/issues",
		fmt.Sprintf(`{"equipment_id":%d,"title":"Loose cable","severity":"LOW"}`, s.pc1))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var issue Models.Issue
	require.NoError(t, json.Unmarshal(raw, &issue))
	assert.Equal(t, "W1", issue.WorkstationName)

	path := fmt.Sprintf("/api/issues/%d", issue.ID)
	resp, _ = s.do(t, middleware.Staff, "POST", path+"/status", `{"status":"IN_PROGRESS"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, raw = s.do(t, middleware.Staff, "POST", path+"/status", `{"status":"CLOSED"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, raw))

	resp, _ = s.do(t, middleware.Staff, "POST", path+"/comments", `{"content":"cable tie added"}`, "Idempotency-Key", "c-1")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = s.do(t, middleware.Staff, "POST", path+"/comments", `{"content":"cable tie added"}`, "Idempotency-Key", "c-1")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, raw = s.do(t, middleware.Staff, "GET", path+"/comments", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var comments []Models.IssueComment
	require.NoError(t, json.Unmarshal(raw, &comments))
	user := 0
	for _, c := range comments {
		if c.Content == "cable tie added" {
			user++
		}
	}
	assert.Equal(t, 1, user)
}

func TestDigestAndExport(t *testing.T) {
	s := newServer(t)

	resp, raw := s.do(t, middleware.Reviewer, "GET", "/api/digest", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Contains(t, string(raw), "All clear.")

	s.configure(t)

	resp, raw = s.do(t, middleware.Reviewer, "GET", "/api/digest", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Contains(t, string(raw), `"text"`)

	resp, raw = s.do(t, middleware.Admin, "POST", "/api/digest/run", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "digest_disabled", errorCode(t, raw))

	resp, _ = s.do(t, middleware.Staff, "GET", "/api/tasks?date_from=2024-01-31&date_to=2024-02-05&ensure=true", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = s.do(t, middleware.Reviewer, "GET", "/api/tasks/export?date_from=2024-01-31&date_to=2024-02-05", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "tasks_2024-01-31_2024-02-05.xlsx")
	assert.NotEmpty(t, raw)
}
