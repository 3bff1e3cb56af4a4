// Package testutil provides a mock CRM API for tests.
package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Record is one stored object. Every record carries a numeric "id".
type Record map[string]any

// MockUser is an account accepted by POST /auth/login.
type MockUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"-"`
}

// Fault is a canned response served instead of the real handler.
type Fault struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// RecordedRequest is a request seen by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// DefaultResources are the collections served by NewMockCRM.
var DefaultResources = []string{"leads", "sellers", "appointments"}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MockCRM is an in-memory CRM API served over HTTP.
type MockCRM struct {
	server *httptest.Server
	secret []byte

	mu          sync.Mutex
	collections map[string][]Record
	nextID      int64
	users       map[string]MockUser
	faults      map[string][]Fault
	delay       func(r *http.Request) time.Duration
	requests    []RecordedRequest
	requireAuth bool
	maxAge      int
	rateLimit   *[3]int
	tokenTTL    time.Duration
}

// NewMockCRM starts a mock serving DefaultResources, or the given resources.
func NewMockCRM(resources ...string) *MockCRM {
	if len(resources) == 0 {
		resources = DefaultResources
	}
	gin.SetMode(gin.TestMode)

	m := &MockCRM{
		secret:      []byte("mock-crm-secret"),
		collections: make(map[string][]Record),
		nextID:      1,
		users:       make(map[string]MockUser),
		faults:      make(map[string][]Fault),
		tokenTTL:    time.Hour,
	}

	engine := gin.New()
	engine.Use(m.record, m.inject)

	engine.POST("/auth/login", m.login)
	engine.POST("/auth/logout", m.authenticate, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	engine.GET("/auth/me", m.authenticate, m.me)

	for _, name := range resources {
		m.collections[name] = nil
		group := engine.Group("/"+name, m.authenticate)
		group.GET("", m.list(name))
		group.POST("", m.create(name))
		group.GET("/:id", m.get(name))
		group.PATCH("/:id", m.update(name))
		group.DELETE("/:id", m.remove(name))
	}

	m.server = httptest.NewServer(engine)
	return m
}

// URL returns the mock server URL.
func (m *MockCRM) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCRM) Close() {
	m.server.Close()
}

// Seed appends records to a collection, assigning ids when missing, and
// returns the stored records.
func (m *MockCRM) Seed(resource string, records ...Record) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(records))
	for _, r := range records {
		rec := cloneRecord(r)
		if _, ok := rec["id"]; !ok {
			rec["id"] = m.nextID
			m.nextID++
		}
		m.collections[resource] = append(m.collections[resource], rec)
		out = append(out, cloneRecord(rec))
	}
	return out
}

// Records returns a copy of a collection.
func (m *MockCRM) Records(resource string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.collections[resource]))
	for _, r := range m.collections[resource] {
		out = append(out, cloneRecord(r))
	}
	return out
}

// AddUser registers a login.
func (m *MockCRM) AddUser(u MockUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(u.Email)] = u
}

// RequireAuth makes collection routes reject requests without a valid token.
func (m *MockCRM) RequireAuth(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requireAuth = on
}

// SetTokenTTL sets the lifetime of issued tokens.
func (m *MockCRM) SetTokenTTL(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenTTL = d
}

// SetCacheMaxAge adds "Cache-Control: private, max-age=N" to list responses.
// Zero sends no-cache.
func (m *MockCRM) SetCacheMaxAge(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAge = seconds
}

// SetRateLimit makes every response carry quota headers.
func (m *MockCRM) SetRateLimit(limit, remaining, resetSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = &[3]int{limit, remaining, resetSeconds}
}

// SetDelay delays responses by fn(request).
func (m *MockCRM) SetDelay(fn func(r *http.Request) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = fn
}

// FailNext queues faults for "METHOD /path" (e.g. "GET /leads"), served in order.
func (m *MockCRM) FailNext(method, path string, faults ...Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.faults[key] = append(m.faults[key], faults...)
}

// Requests returns every request seen so far.
func (m *MockCRM) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests for "METHOD /path", or all
// requests when key is empty.
func (m *MockCRM) RequestCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		return len(m.requests)
	}
	n := 0
	for _, r := range m.requests {
		if r.Method+" "+r.Path == key {
			n++
		}
	}
	return n
}

// ConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockCRM) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Header.Get("If-None-Match") != "" {
			n++
		}
	}
	return n
}

// Reset clears recorded requests and queued faults.
func (m *MockCRM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.faults = make(map[string][]Fault)
}

// IssueToken signs an HS256 token for subject.
func (m *MockCRM) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "mock-crm",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *MockCRM) verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware

func (m *MockCRM) record(c *gin.Context) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.Query(),
		Header: c.Request.Header.Clone(),
	})
	delay := m.delay
	rl := m.rateLimit
	m.mu.Unlock()

	if rl != nil {
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl[0]))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl[1]))
		c.Header("X-RateLimit-Reset", strconv.Itoa(rl[2]))
	}

	if delay != nil {
		if d := delay(c.Request); d > 0 {
			select {
			case <-time.After(d):
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}
	}
	c.Next()
}

func (m *MockCRM) inject(c *gin.Context) {
	key := c.Request.Method + " " + c.Request.URL.Path

	m.mu.Lock()
	queue := m.faults[key]
	var fault *Fault
	if len(queue) > 0 {
		fault = &queue[0]
		m.faults[key] = queue[1:]
	}
	m.mu.Unlock()

	if fault == nil {
		c.Next()
		return
	}
	for k, v := range fault.Headers {
		c.Header(k, v)
	}
	body := fault.Body
	if body == "" {
		body = fmt.Sprintf(`{"message":%q}`, http.StatusText(fault.StatusCode))
	}
	c.Data(fault.StatusCode, "application/json; charset=utf-8", []byte(body))
	c.Abort()
}

func (m *MockCRM) authenticate(c *gin.Context) {
	m.mu.Lock()
	required := m.requireAuth
	m.mu.Unlock()

	header := c.GetHeader("Authorization")
	if header == "" {
		if required || c.FullPath() == "/auth/me" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}
		c.Next()
		return
	}

	tokenString := strings.TrimPrefix(header, "Bearer ")
	claims, err := m.verify(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	c.Set("subject", claims.Subject)
	c.Next()
}

// Handlers

func (m *MockCRM) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body"})
		return
	}

	m.mu.Lock()
	user, ok := m.users[strings.ToLower(body.Email)]
	ttl := m.tokenTTL
	m.mu.Unlock()

	if !ok || user.Password != body.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	token, err := m.IssueToken(user.Email, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (m *MockCRM) me(c *gin.Context) {
	subject := c.GetString("subject")

	m.mu.Lock()
	user, ok := m.users[strings.ToLower(subject)]
	m.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "unknown user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (m *MockCRM) list(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := atoiDefault(c.Query("page"), 1)
		pageSize := atoiDefault(c.Query("pageSize"), defaultPageSize)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		if page < 1 || pageSize < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "page and pageSize must be positive"})
			return
		}

		filters := c.Request.URL.Query()
		search := strings.ToLower(filters.Get("search"))
		for _, k := range []string{"page", "pageSize", "search"} {
			filters.Del(k)
		}

		m.mu.Lock()
		var matched []Record
		for _, r := range m.collections[resource] {
			if matches(r, filters, search) {
				matched = append(matched, cloneRecord(r))
			}
		}
		maxAge := m.maxAge
		m.mu.Unlock()

		sort.SliceStable(matched, func(i, j int) bool {
			return idOf(matched[i]) < idOf(matched[j])
		})

		// Pages past the end are clamped to the last page.
		lastPage := (len(matched) + pageSize - 1) / pageSize
		if lastPage < 1 {
			lastPage = 1
		}
		if page > lastPage {
			page = lastPage
		}

		start := (page - 1) * pageSize
		end := min(start+pageSize, len(matched))
		items := matched[start:end]
		if items == nil {
			items = []Record{}
		}

		body, err := json.Marshal(gin.H{"items": items, "totalCount": len(matched), "page": page})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}

		sum := sha1.Sum(body)
		etag := `"` + hex.EncodeToString(sum[:]) + `"`
		c.Header("ETag", etag)
		if maxAge > 0 {
			c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))
		} else {
			c.Header("Cache-Control", "no-cache")
		}

		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
	}
}

func (m *MockCRM) get(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if i := m.indexOf(resource, c.Param("id")); i >= 0 {
			c.JSON(http.StatusOK, m.collections[resource][i])
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	}
}

func (m *MockCRM) create(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec Record
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body"})
			return
		}

		m.mu.Lock()
		rec["id"] = m.nextID
		m.nextID++
		m.collections[resource] = append(m.collections[resource], rec)
		out := cloneRecord(rec)
		m.mu.Unlock()

		c.JSON(http.StatusCreated, out)
	}
}

func (m *MockCRM) update(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch Record
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body"})
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		i := m.indexOf(resource, c.Param("id"))
		if i < 0 {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		rec := m.collections[resource][i]
		for k, v := range patch {
			if k != "id" {
				rec[k] = v
			}
		}
		c.JSON(http.StatusOK, cloneRecord(rec))
	}
}

func (m *MockCRM) remove(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()
		i := m.indexOf(resource, c.Param("id"))
		if i < 0 {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		coll := m.collections[resource]
		m.collections[resource] = append(coll[:i:i], coll[i+1:]...)
		c.Status(http.StatusNoContent)
	}
}

func (m *MockCRM) indexOf(resource, id string) int {
	for i, r := range m.collections[resource] {
		if fmt.Sprint(r["id"]) == id {
			return i
		}
	}
	return -1
}

func matches(r Record, filters url.Values, search string) bool {
	for k := range filters {
		want := filters.Get(k)
		if k == "date" {
			// Matches the calendar day of startsAt (RFC 3339).
			if s, _ := r["startsAt"].(string); !strings.HasPrefix(s, want) {
				return false
			}
			continue
		}
		if fmt.Sprint(r[k]) != want {
			return false
		}
	}
	if search == "" {
		return true
	}
	for _, v := range r {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), search) {
			return true
		}
	}
	return false
}

func idOf(r Record) int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		n, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return n
	}
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
