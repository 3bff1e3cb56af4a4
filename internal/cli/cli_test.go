package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/Sternrassler/crm-admin-client/internal/testutil"
	"github.com/Sternrassler/crm-admin-client/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t     *testing.T
	mock  *testutil.MockCRM
	store *auth.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mock := testutil.NewMockCRM()
	t.Cleanup(mock.Close)
	mock.AddUser(testutil.MockUser{ID: "u1", Email: "ana@crm.local", Name: "Ana", Role: "admin", Password: "s3cret"})
	mock.RequireAuth(true)

	for i := 1; i <= 45; i++ {
		status := "NEW"
		if i%5 == 0 {
			status = "WON"
		}
		mock.Seed("leads", testutil.Record{"name": fmt.Sprintf("Lead %02d", i), "status": status, "sellerId": 1})
	}
	mock.Seed("sellers",
		testutil.Record{"name": "Bruno", "email": "bruno@crm.local", "active": true},
		testutil.Record{"name": "Carla", "email": "carla@crm.local", "active": false},
	)
	mock.Seed("appointments",
		testutil.Record{"leadId": 1, "sellerId": 1, "startsAt": "2026-03-02T09:00:00Z", "durationMinutes": 30, "status": "SCHEDULED"},
		testutil.Record{"leadId": 2, "sellerId": 1, "startsAt": "2026-03-02T11:00:00Z", "durationMinutes": 30, "status": "NO_SHOW"},
		testutil.Record{"leadId": 3, "sellerId": 1, "startsAt": "2026-03-03T09:00:00Z", "durationMinutes": 60, "status": "SCHEDULED"},
	)

	return &harness{t: t, mock: mock, store: auth.NewMemoryStore()}
}

// run executes crmctl against the mock and returns exit code, stdout and stderr.
func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()

	var stdout, stderr bytes.Buffer
	full := append([]string{"--base-url", h.mock.URL(), "--log-level", "off", "--session", "memory"}, args...)
	code := Run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr, WithSessionStore(h.store))
	return code, stdout.String(), stderr.String()
}

func (h *harness) login() {
	h.t.Helper()
	code, _, stderr := h.run("", "login", "--email", "ana@crm.local", "--password", "s3cret")
	require.Equal(h.t, exitSuccess, code, stderr)
	h.mock.Reset()
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	code, out, stderr := h.run("s3cret\n", "login", "--email", "ana@crm.local", "--password-stdin")
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, out, "Logged in as Ana <ana@crm.local> (admin)")
	assert.Contains(t, stderr, "Next: crmctl dashboard")

	code, out, _ = h.run("", "whoami")
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, out, "Ana <ana@crm.local> (admin)")
	assert.Contains(t, out, "Session expires in")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("", "login", "--email", "ana@crm.local", "--password", "nope")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, "invalid email or password")
}

func TestWhoami_NotLoggedIn(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("", "whoami")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, "not logged in")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, out, _ := h.run("", "logout")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, out, "Logged out")

	_, err := h.store.Load(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestLeadsList(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, out, stderr := h.run("", "leads", "list", "--page", "2")
	require.Equal(t, exitSuccess, code, stderr)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Lead 21")
	assert.Contains(t, out, "Lead 40")
	assert.NotContains(t, out, "Lead 41")
	assert.Contains(t, out, "Showing 21-40 of 45 (page 2 of 3)")

	reqs := h.mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "2", reqs[0].Query.Get("page"))
	assert.Equal(t, "20", reqs[0].Query.Get("pageSize"))
}

func TestLeadsList_FilterAndSearch(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, out, stderr := h.run("", "leads", "list", "--filter", "status=WON", "--page-size", "5", "--json")
	require.Equal(t, exitSuccess, code, stderr)

	var page struct {
		Items      []map[string]any `json:"items"`
		TotalCount int              `json:"totalCount"`
		TotalPages int              `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 9, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 5)

	code, out, _ = h.run("", "leads", "list", "--search", "nobody")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, out, "No results match the current filters.")
}

func TestLeadsList_InvalidFilter(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, _, stderr := h.run("", "leads", "list", "--filter", "status=NO_SHOW")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, "NO_SHOW")
	assert.Zero(t, h.mock.RequestCount(""))

	code, _, stderr = h.run("", "leads", "list", "--filter", "status")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, "want name=value")
}

func TestLeadsList_ServerError(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.mock.FailNext("GET", "/leads",
		testutil.Fault{StatusCode: 503}, testutil.Fault{StatusCode: 503}, testutil.Fault{StatusCode: 503})

	code, _, stderr := h.run("", "--timeout", "2s", "leads", "list")
	assert.Equal(t, exitSysError, code)
	assert.Contains(t, stderr, "The server could not complete the request.")
}

func TestLeadsDelete(t *testing.T) {
	h := newHarness(t)
	h.login()

	t.Run("declined", func(t *testing.T) {
		code, out, stderr := h.run("n\n", "leads", "delete", "3")
		require.Equal(t, exitSuccess, code)
		assert.Contains(t, stderr, "Delete lead 3? [y/N]")
		assert.Contains(t, out, "Cancelled")
		assert.Zero(t, h.mock.RequestCount("DELETE /leads/3"))
	})

	t.Run("confirmed", func(t *testing.T) {
		code, out, stderr := h.run("y\n", "leads", "delete", "3")
		require.Equal(t, exitSuccess, code, stderr)
		assert.Contains(t, out, "Deleted lead 3 (44 remaining)")
		assert.Equal(t, 1, h.mock.RequestCount("DELETE /leads/3"))
	})

	t.Run("missing", func(t *testing.T) {
		code, _, stderr := h.run("", "leads", "delete", "3", "--yes")
		assert.Equal(t, exitUserError, code)
		assert.Contains(t, stderr, "lead 3 not found")
	})

	t.Run("bad id", func(t *testing.T) {
		code, _, _ := h.run("", "leads", "delete", "abc", "--yes")
		assert.Equal(t, exitUserError, code)
	})
}

func TestLeadsExport(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, out, stderr := h.run("", "leads", "export", "--format", "csv")
	require.Equal(t, exitSuccess, code, stderr)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 46)
	assert.Equal(t, "id,name,email,status,seller,source,created", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Lead 01,"))

	code, out, _ = h.run("", "leads", "export", "--filter", "status=WON")
	require.Equal(t, exitSuccess, code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 9)
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, out, stderr := h.run("", "dashboard", "--date", "2026-03-02", "--json")
	require.Equal(t, exitSuccess, code, stderr)

	var tiles []struct {
		Label string `json:"label"`
		Count int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tiles))

	got := map[string]int{}
	for _, tl := range tiles {
		got[tl.Label] = tl.Count
	}
	assert.Equal(t, map[string]int{
		"Leads":                   45,
		"New leads":               36,
		"Won leads":               9,
		"Active sellers":          1,
		"Appointments 2026-03-02": 2,
		"No-shows 2026-03-02":     1,
	}, got)
}

func TestDashboard_InvalidDate(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, _, _ := h.run("", "dashboard", "--date", "03/02/2026")
	assert.Equal(t, exitUserError, code)
}

func TestList_RequiresSession(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("", "sellers", "list")
	assert.Equal(t, exitSysError, code)
	assert.Contains(t, stderr, "The server could not complete the request.")
}
