package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studio-backend/internal/middleware"
	"studio-backend/internal/models"
	"studio-backend/internal/services"
	"studio-backend/internal/storetest"
)

type testEnv struct {
	router   http.Handler
	members  *storetest.Members
	packages *storetest.Packages
	sessions *storetest.Sessions
	memberID uuid.UUID
	auth     *services.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	memberID := uuid.New()
	members := storetest.NewMembers(memberID)
	packages := storetest.NewPackages()
	sessions := storetest.NewSessions(packages)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	scheduling := services.NewSchedulingService(sessions, members, packages, nil, nil, nil, nil, []string{"Vacu 1", "Vacu 2"})
	packageSvc := services.NewPackageService(packages, members, nil, nil)
	memberSvc := services.NewMemberService(members)
	authSvc := services.NewAuthService(storetest.NewStaff(), client, middleware.NewJWTAuth("test-secret"), nil)

	sh := NewSessionHandler(scheduling, nil)
	ph := NewPackageHandler(packageSvc, nil)
	mh := NewMemberHandler(memberSvc, packageSvc, scheduling, nil)
	ah := NewAuthHandler(authSvc, nil)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Post("/auth/login", ah.Login)
	r.Post("/auth/refresh", ah.Refresh)
	r.Get("/sessions", sh.Search)
	r.Post("/sessions", sh.Create)
	r.Get("/sessions/{id}", sh.Get)
	r.Put("/sessions/{id}", sh.Update)
	r.Post("/sessions/{id}/complete", sh.Complete)
	r.Delete("/sessions/{id}", sh.Delete)
	r.Post("/packages", ph.Create)
	r.Get("/packages/expiring", ph.Expiring)
	r.Post("/packages/{id}/use", ph.Use)
	r.Post("/members", mh.Create)
	r.Get("/members/{id}/packages", mh.Packages)
	r.Get("/members/{id}/sessions/upcoming", mh.UpcomingSessions)

	return &testEnv{
		router:   r,
		members:  members,
		packages: packages,
		sessions: sessions,
		memberID: memberID,
		auth:     authSvc,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Meta    *models.PageMeta `json:"meta"`
	Error   *models.APIError `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

// slot returns a future start time aligned to the booking grid.
func slot(hour int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 2)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

// ─── Session Handler Tests ───

func TestCreateSessionHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sessions", map[string]interface{}{
		"member_id":     env.memberID,
		"sub_device_id": "Vacu 1",
		"start_time":    slot(10),
		"duration":      30,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode(t, rr)
	if !resp.Success {
		t.Error("Expected success envelope")
	}
	var session models.Session
	if err := json.Unmarshal(resp.Data, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Status != models.SessionBooked {
		t.Errorf("Expected status booked, got %q", session.Status)
	}
	if session.SubDeviceID != "Vacu 1" {
		t.Errorf("Expected sub-device 'Vacu 1', got %q", session.SubDeviceID)
	}
}

func TestCreateSessionHandler_Conflict(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{
		"member_id":     env.memberID,
		"sub_device_id": "Vacu 1",
		"start_time":    slot(10),
		"duration":      60,
	}

	if rr := env.do(t, http.MethodPost, "/sessions", body); rr.Code != http.StatusCreated {
		t.Fatalf("First booking: expected 201, got %d", rr.Code)
	}

	body["start_time"] = slot(10).Add(30 * time.Minute)
	rr := env.do(t, http.MethodPost, "/sessions", body)

	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode(t, rr)
	if resp.Success {
		t.Error("Expected success=false")
	}
	if resp.Error == nil || resp.Error.Code != "CONFLICT" {
		t.Fatalf("Expected CONFLICT error, got %+v", resp.Error)
	}
	if resp.Error.RequestID == "" {
		t.Error("Expected request_id in error envelope")
	}
}

func TestCreateSessionHandler_Validation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sessions", map[string]interface{}{
		"member_id":     env.memberID,
		"sub_device_id": "Vacu 9",
		"start_time":    slot(10),
		"duration":      5,
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
	resp := decode(t, rr)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("Expected VALIDATION_ERROR, got %+v", resp.Error)
	}
	for _, field := range []string{"sub_device_id", "duration"} {
		if _, ok := resp.Error.Fields[field]; !ok {
			t.Errorf("Expected field error for %q, got %v", field, resp.Error.Fields)
		}
	}
}

func TestCreateSessionHandler_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestCreateSessionHandler_UnknownMember(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sessions", map[string]interface{}{
		"member_id":     uuid.New(),
		"sub_device_id": "Vacu 1",
		"start_time":    slot(10),
		"duration":      30,
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestGetSessionHandler_BadID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/sessions/not-a-uuid", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestCompleteSessionHandler_NoBody(t *testing.T) {
	env := newTestEnv(t)
	s := models.Session{
		ID:              uuid.New(),
		MemberID:        env.memberID,
		SubDeviceID:     "Vacu 1",
		StartTime:       slot(9),
		DurationMinutes: 30,
		Status:          models.SessionConfirmed,
	}
	env.sessions.Put(s)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+s.ID.String()+"/complete", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.sessions.Status(s.ID); got != models.SessionCompleted {
		t.Errorf("Expected completed, got %q", got)
	}

	// A second completion is rejected.
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+s.ID.String()+"/complete", nil)
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 on second completion, got %d", rr.Code)
	}
}

func TestUpdateSessionHandler_Cancel(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/sessions", map[string]interface{}{
		"member_id": env.memberID, "sub_device_id": "Vacu 2", "start_time": slot(11), "duration": 45,
	})
	var created models.Session
	if err := json.Unmarshal(decode(t, rr).Data, &created); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	rr = env.do(t, http.MethodPut, "/sessions/"+created.ID.String(), map[string]string{"status": "cancelled"})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.sessions.Status(created.ID); got != models.SessionCancelled {
		t.Errorf("Expected cancelled, got %q", got)
	}
}

func TestSearchSessionsHandler(t *testing.T) {
	env := newTestEnv(t)
	for _, h := range []int{9, 10, 11} {
		env.sessions.Put(models.Session{
			ID: uuid.New(), MemberID: env.memberID, SubDeviceID: "Vacu 1",
			StartTime: slot(h), DurationMinutes: 30, Status: models.SessionBooked,
		})
	}

	rr := env.do(t, http.MethodGet, "/sessions?limit=2&page=1&status=booked", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode(t, rr)
	if resp.Meta == nil {
		t.Fatal("Expected pagination meta")
	}
	if resp.Meta.Total != 3 || resp.Meta.Limit != 2 || resp.Meta.Page != 1 {
		t.Errorf("Unexpected meta %+v", *resp.Meta)
	}
	var sessions []models.Session
	if err := json.Unmarshal(resp.Data, &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions on the page, got %d", len(sessions))
	}
}

func TestSearchSessionsHandler_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{"bad member", "member_id=abc", "member_id"},
		{"bad from", "from=yesterday", "from"},
		{"bad order", "order=sideways", "order"},
		{"bad limit", "limit=-4", "limit"},
		{"page past cap", "page=9223372036854775807&limit=100", "page"},
		{"page not an int", "page=99999999999999999999", "page"},
		{"unknown status", "status=lost", "status"},
		{"unknown sort", "sort_by=colour", "sort_by"},
	}

	env := newTestEnv(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/sessions?"+tc.query, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rr.Code)
			}
			resp := decode(t, rr)
			if _, ok := resp.Error.Fields[tc.field]; !ok {
				t.Errorf("Expected field error for %q, got %v", tc.field, resp.Error.Fields)
			}
		})
	}
}

func TestParseSearchParams_CommaSeparatedStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sessions?status=booked,confirmed&status=cancelled&order=desc", nil)

	params, fields := parseSearchParams(req)

	if len(fields) != 0 {
		t.Fatalf("Unexpected field errors %v", fields)
	}
	if len(params.Statuses) != 3 {
		t.Errorf("Expected 3 statuses, got %v", params.Statuses)
	}
	if !params.SortDesc {
		t.Error("Expected descending order")
	}
}

func TestDeleteSessionHandler(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.sessions.Put(models.Session{ID: id, MemberID: env.memberID, SubDeviceID: "Vacu 1", StartTime: slot(9), DurationMinutes: 30, Status: models.SessionBooked})

	if rr := env.do(t, http.MethodDelete, "/sessions/"+id.String(), nil); rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/sessions/"+id.String(), nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rr.Code)
	}
}

// ─── Package Handler Tests ───

func seedPackage(env *testEnv, remaining int, end time.Time) models.Package {
	p := models.Package{
		ID:                uuid.New(),
		MemberID:          env.memberID,
		DeviceType:        "Vacu",
		StartDate:         time.Now().AddDate(0, -1, 0),
		EndDate:           end,
		TotalSessions:     10,
		SessionsRemaining: remaining,
		IsActive:          true,
	}
	env.packages.Put(p)
	return p
}

func TestUsePackageHandler(t *testing.T) {
	env := newTestEnv(t)
	pkg := seedPackage(env, 3, time.Now().AddDate(0, 1, 0))

	rr := env.do(t, http.MethodPost, "/packages/"+pkg.ID.String()+"/use", map[string]int{"sessions_to_use": 2})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated models.Package
	if err := json.Unmarshal(decode(t, rr).Data, &updated); err != nil {
		t.Fatalf("decode package: %v", err)
	}
	if updated.SessionsRemaining != 1 {
		t.Errorf("Expected 1 remaining, got %d", updated.SessionsRemaining)
	}

	rr = env.do(t, http.MethodPost, "/packages/"+pkg.ID.String()+"/use", map[string]int{"sessions_to_use": 2})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 when overdrawing, got %d", rr.Code)
	}
}

func TestUsePackageHandler_Bounds(t *testing.T) {
	env := newTestEnv(t)
	pkg := seedPackage(env, 10, time.Now().AddDate(0, 1, 0))

	rr := env.do(t, http.MethodPost, "/packages/"+pkg.ID.String()+"/use", map[string]int{"sessions_to_use": 0})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
	if _, ok := decode(t, rr).Error.Fields["sessions_to_use"]; !ok {
		t.Error("Expected sessions_to_use field error")
	}
}

func TestExpiringPackagesHandler(t *testing.T) {
	env := newTestEnv(t)
	soon := seedPackage(env, 2, time.Now().Add(48*time.Hour))
	seedPackage(env, 2, time.Now().AddDate(0, 3, 0))

	rr := env.do(t, http.MethodGet, "/packages/expiring", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var pkgs []models.Package
	if err := json.Unmarshal(decode(t, rr).Data, &pkgs); err != nil {
		t.Fatalf("decode packages: %v", err)
	}
	if len(pkgs) != 1 || pkgs[0].ID != soon.ID {
		t.Errorf("Expected only the package ending soon, got %+v", pkgs)
	}

	if rr := env.do(t, http.MethodGet, "/packages/expiring?limit=x", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rr.Code)
	}
}

// ─── Member Handler Tests ───

func TestCreateMemberHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/members", map[string]string{"full_name": "Ana Costa", "email": "ana@example.com"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var member models.Member
	if err := json.Unmarshal(decode(t, rr).Data, &member); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	if ok, _ := env.members.Exists(context.Background(), member.ID); !ok {
		t.Error("Expected member to be stored")
	}
}

func TestMemberPackagesHandler_UnknownMember(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/members/"+uuid.New().String()+"/packages", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestMemberUpcomingSessionsHandler(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.Put(models.Session{ID: uuid.New(), MemberID: env.memberID, SubDeviceID: "Vacu 1", StartTime: slot(9), DurationMinutes: 30, Status: models.SessionBooked})
	env.sessions.Put(models.Session{ID: uuid.New(), MemberID: env.memberID, SubDeviceID: "Vacu 1", StartTime: slot(12), DurationMinutes: 30, Status: models.SessionCancelled})

	rr := env.do(t, http.MethodGet, "/members/"+env.memberID.String()+"/sessions/upcoming", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var sessions []models.Session
	if err := json.Unmarshal(decode(t, rr).Data, &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("Expected 1 upcoming session, got %d", len(sessions))
	}
}

// ─── Auth Handler Tests ───

func TestLoginHandler(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.auth.CreateStaff(context.Background(), services.CreateStaffInput{
		Email: "desk@studio.test", Password: "pilates123", FullName: "Front Desk",
	}); err != nil {
		t.Fatalf("create staff: %v", err)
	}

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "desk@studio.test", "password": "pilates123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var tokens models.AuthTokens
	if err := json.Unmarshal(decode(t, rr).Data, &tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Error("Expected both tokens")
	}

	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "desk@studio.test", "password": "wrong-pass1"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a wrong password, got %d", rr.Code)
	}
}

func TestRefreshHandler_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/auth/refresh", map[string]string{})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}
