package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/ashenguild/api/rest"
	"github.com/kasuganosora/ashenguild/api/soap"
	"github.com/kasuganosora/ashenguild/api/sse"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/character"
	"github.com/kasuganosora/ashenguild/config"
	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/metrics"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/pubsub"
	"github.com/kasuganosora/ashenguild/scheduler"
	"github.com/kasuganosora/ashenguild/store"
	"github.com/kasuganosora/ashenguild/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Options tweaks the wiring of a TestServer.
type Options struct {
	// Redis routes events through an in-process miniredis instead of the
	// local fan-out.
	Redis bool
	// OpsAllowedIPs restricts /ops; empty allows all.
	OpsAllowedIPs  []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// TestServer wraps a real HTTP server with every guild subsystem wired together.
type TestServer struct {
	DB      *gorm.DB
	Gateway *store.Gateway
	Service *guild.Service
	PubSub  pubsub.PubSub
	Audit   *audit.Service
	Sched   *scheduler.Scheduler
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T, opts Options) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS, opts.RateLimitBurst = 1000, 2000
	}

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	psCfg := pubsub.Config{}
	if opts.Redis {
		mr := miniredis.RunT(t)
		psCfg.RedisAddr = mr.Addr()
	}
	ps, err := pubsub.New(psCfg)
	require.NoError(t, err)

	sec := config.SecurityConfig{
		RateLimitRPS:   opts.RateLimitRPS,
		RateLimitBurst: opts.RateLimitBurst,
		OpsAllowedIPs:  opts.OpsAllowedIPs,
	}

	// ---- Services ----
	gw := store.New(db, store.Options{Timeout: 5 * time.Second}, logger)
	svc := guild.NewService(guild.NewRepository(gw), guild.NewPublisher(ps, logger), logger)
	charSvc := character.NewService(character.NewRepository(gw), logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- Gin HTTP Server (mirrors main.go) ----
	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), metrics.Middleware())
	r.Use(mw.RateLimit(ctx, rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	opsH := apirest.NewOpsHandler(gw, svc, sched, auditSvc, logger)
	r.GET("/health", opsH.Health)
	opsH.RegisterRoutes(r.Group("/ops", mw.IPWhitelist(sec.OpsAllowedIPs, logger)))

	guildsG := r.Group("/api/guilds", mw.Audit(auditSvc, audit.TransportREST))
	guildsG.GET("/events", sse.NewHandler(ps, logger).ServeSSE)
	apirest.NewGuildHandler(svc).RegisterRoutes(guildsG)

	apiG := r.Group("/api", mw.Audit(auditSvc, audit.TransportREST))
	apirest.NewCharacterHandler(charSvc).RegisterRoutes(apiG)
	apiG.GET("/dashboard", apirest.NewDashboardHandler(svc, charSvc, logger).Dashboard)

	soapG := r.Group("", mw.RecoveryWith(logger, soap.PanicFault), mw.Audit(auditSvc, audit.TransportSOAP))
	soap.NewHandler(svc, "http://localhost:8000/soap", logger).RegisterRoutes(soapG)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:      db,
		Gateway: gw,
		Service: svc,
		PubSub:  ps,
		Audit:   auditSvc,
		Sched:   sched,
		Server:  server,
		URL:     server.URL,
	}
	t.Cleanup(func() {
		server.Close()
		cancel()
		sched.Stop()
		auditSvc.Stop(context.Background())
		_ = ps.Close()
	})
	return ts
}

// --- HTTP helpers ---

// PostJSON sends a POST request with a JSON body.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request.
func (ts *TestServer) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	return resp
}

// SOAP posts a document/literal envelope wrapping op to /soap.
func (ts *TestServer) SOAP(t *testing.T, op string) *http.Response {
	t.Helper()
	env := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soap:Envelope xmlns:soap="` + soap.EnvelopeNS + `" xmlns:tns="` + soap.GuildNS + `">` +
		`<soap:Body>` + op + `</soap:Body></soap:Envelope>`
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/soap", strings.NewReader(env))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON decodes resp's body into a map and closes it.
func ReadJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

// ReadBody returns resp's body as a string and closes it.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
