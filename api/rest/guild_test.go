package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/api/rest"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/guild"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/store"
	"github.com/kasuganosora/ashenguild/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type captureAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureAudit) Log(e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAudit) all() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Entry(nil), c.entries...)
}

func newGuildService(t *testing.T) (*guild.Service, *store.Gateway, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	gw := store.New(db, store.Options{Timeout: 5 * time.Second}, zap.NewNop())
	svc := guild.NewService(guild.NewRepository(gw), nil, zap.NewNop())
	return svc, gw, db
}

// newGuildSetup creates a router with the guild endpoints mounted under /api/guilds.
func newGuildSetup(t *testing.T) (*gin.Engine, *gorm.DB, *captureAudit) {
	t.Helper()
	svc, _, db := newGuildService(t)
	capture := &captureAudit{}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Audit(capture, audit.TransportREST))
	rest.NewGuildHandler(svc).RegisterRoutes(r.Group("/api/guilds"))
	return r, db, capture
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getReq(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func createGuild(t *testing.T, r *gin.Engine, name, leader string) int64 {
	t.Helper()
	w := postJSON(r, "/api/guilds", map[string]string{"name": name, "description": "", "leader": leader})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	g := decode(t, w)["guild"].(map[string]interface{})
	return int64(g["id"].(float64))
}

// ---- Create ----

func TestGuildCreate_Success(t *testing.T) {
	r, _, capture := newGuildSetup(t)

	w := postJSON(r, "/api/guilds", map[string]string{
		"name": "Lords of Cinder", "description": "United to link the First Flame", "leader": "Gwyn",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	g := decode(t, w)["guild"].(map[string]interface{})
	assert.Equal(t, "Lords of Cinder", g["name"])
	assert.Equal(t, "Gwyn", g["leader"])
	assert.Equal(t, float64(1), g["member_count"])

	entries := capture.all()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionCreateGuild, entries[0].Action)
	require.NotNil(t, entries[0].GuildID)
	assert.Equal(t, int64(g["id"].(float64)), *entries[0].GuildID)
	assert.Empty(t, entries[0].Error)
}

func TestGuildCreate_Duplicate(t *testing.T) {
	r, _, capture := newGuildSetup(t)
	createGuild(t, r, "Darkwraiths", "Kaathe")

	w := postJSON(r, "/api/guilds", map[string]string{"name": "Darkwraiths", "leader": "Frampt"})
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, string(guild.CodeDuplicateName), resp["code"])
	assert.Equal(t, "guild name already exists", resp["error"])

	entries := capture.all()
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[1].Error)
}

func TestGuildCreate_InvalidInput(t *testing.T) {
	r, _, _ := newGuildSetup(t)

	w := postJSON(r, "/api/guilds", map[string]string{"name": "", "leader": "Gwyn"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(guild.CodeInvalidInput), decode(t, w)["code"])

	req := httptest.NewRequest(http.MethodPost, "/api/guilds", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---- List / Detail ----

func TestGuildList(t *testing.T) {
	r, _, _ := newGuildSetup(t)

	w := getReq(r, "/api/guilds")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["guilds"])

	createGuild(t, r, "A", "LeaderA")
	createGuild(t, r, "B", "LeaderB")

	w = getReq(r, "/api/guilds")
	guilds := decode(t, w)["guilds"].([]interface{})
	require.Len(t, guilds, 2)
	assert.Equal(t, "A", guilds[0].(map[string]interface{})["name"])
}

func TestGuildDetail_Found(t *testing.T) {
	r, _, _ := newGuildSetup(t)
	id := createGuild(t, r, "DetailGuild", "Gwyn")

	w := getReq(r, fmt.Sprintf("/api/guilds/%d", id))
	require.Equal(t, http.StatusOK, w.Code)
	g := decode(t, w)["guild"].(map[string]interface{})
	assert.Equal(t, "DetailGuild", g["name"])
}

func TestGuildDetail_NotFound(t *testing.T) {
	r, _, _ := newGuildSetup(t)

	w := getReq(r, "/api/guilds/9999")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(guild.CodeNotFound), decode(t, w)["code"])
}

func TestGuildDetail_InvalidID(t *testing.T) {
	r, _, _ := newGuildSetup(t)

	for _, p := range []string{"/api/guilds/abc", "/api/guilds/0", "/api/guilds/-3"} {
		w := getReq(r, p)
		assert.Equal(t, http.StatusBadRequest, w.Code, p)
	}
}

// ---- Join / Members ----

func TestGuildJoin_Success(t *testing.T) {
	r, _, capture := newGuildSetup(t)
	id := createGuild(t, r, "Lords of Cinder", "Gwyn")

	w := postJSON(r, fmt.Sprintf("/api/guilds/%d/join", id), map[string]string{"character_name": "Ornstein"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "Character Ornstein joined guild successfully", resp["message"])

	w = getReq(r, fmt.Sprintf("/api/guilds/%d/members", id))
	require.Equal(t, http.StatusOK, w.Code)
	members := decode(t, w)["members"].([]interface{})
	require.Len(t, members, 2)
	assert.Equal(t, "Gwyn", members[0].(map[string]interface{})["character_name"])
	assert.Equal(t, "Leader", members[0].(map[string]interface{})["rank"])
	assert.Equal(t, "Ornstein", members[1].(map[string]interface{})["character_name"])
	assert.Equal(t, "Member", members[1].(map[string]interface{})["rank"])

	w = getReq(r, fmt.Sprintf("/api/guilds/%d", id))
	assert.Equal(t, float64(2), decode(t, w)["guild"].(map[string]interface{})["member_count"])

	entries := capture.all()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionJoinGuild, entries[1].Action)
	assert.Equal(t, "Ornstein", entries[1].CharacterName)
}

func TestGuildJoin_AlreadyMember(t *testing.T) {
	r, _, _ := newGuildSetup(t)
	id := createGuild(t, r, "Lords of Cinder", "Gwyn")

	w := postJSON(r, fmt.Sprintf("/api/guilds/%d/join", id), map[string]string{"character_name": "Gwyn"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(guild.CodeAlreadyMember), decode(t, w)["code"])
}

func TestGuildJoin_GuildNotFound(t *testing.T) {
	r, _, _ := newGuildSetup(t)

	w := postJSON(r, "/api/guilds/9999/join", map[string]string{"character_name": "Ornstein"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(guild.CodeGuildNotFound), decode(t, w)["code"])
}

func TestGuildMembers_UnknownGuild(t *testing.T) {
	r, _, _ := newGuildSetup(t)

	w := getReq(r, "/api/guilds/9999/members")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["members"])
}

func TestGuild_StoreUnavailable(t *testing.T) {
	_, _, db := newGuildService(t)

	// Hold the only connection so the next call times out.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	conn, err := sqlDB.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	short := guild.NewService(guild.NewRepository(store.New(db, store.Options{Timeout: 50 * time.Millisecond}, nil)), nil, nil)
	r := gin.New()
	rest.NewGuildHandler(short).RegisterRoutes(r.Group("/api/guilds"))

	w := getReq(r, "/api/guilds")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	// Sub-second timeouts round up to one second.
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, string(guild.CodeStoreUnavailable), decode(t, w)["code"])
}

func TestGuild_RetryAfterFollowsStoreTimeout(t *testing.T) {
	_, _, db := newGuildService(t)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	conn, err := sqlDB.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	slow := guild.NewService(guild.NewRepository(store.New(db, store.Options{Timeout: 1200 * time.Millisecond}, nil)), nil, nil)
	r := gin.New()
	rest.NewGuildHandler(slow).RegisterRoutes(r.Group("/api/guilds"))

	w := getReq(r, "/api/guilds")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestStatusFor(t *testing.T) {
	cases := map[guild.Code]int{
		guild.CodeInvalidInput:     http.StatusBadRequest,
		guild.CodeNotFound:         http.StatusNotFound,
		guild.CodeGuildNotFound:    http.StatusNotFound,
		guild.CodeDuplicateName:    http.StatusConflict,
		guild.CodeAlreadyMember:    http.StatusConflict,
		guild.CodeStoreUnavailable: http.StatusServiceUnavailable,
		guild.CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, rest.StatusFor(code), string(code))
	}
}
