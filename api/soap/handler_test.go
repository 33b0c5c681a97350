package soap_test

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/api/soap"
	"github.com/kasuganosora/ashenguild/guild"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/store"
	"github.com/kasuganosora/ashenguild/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Response shapes as a client would decode them.
type envelope struct {
	Body struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
			Detail struct {
				ErrorCode string `xml:"error_code"`
			} `xml:"detail"`
		} `xml:"Fault"`
		GetAll *struct {
			Guilds []guildXML `xml:"guild"`
		} `xml:"get_all_guildsResponse"`
		GetByID *struct {
			Guild guildXML `xml:"guild"`
		} `xml:"get_guild_by_idResponse"`
		Create *struct {
			Guild guildXML `xml:"guild"`
		} `xml:"create_guildResponse"`
		Join *struct {
			Message string `xml:"message"`
		} `xml:"join_guildResponse"`
		Members *struct {
			Members []memberXML `xml:"member"`
		} `xml:"get_guild_membersResponse"`
	} `xml:"Body"`
}

type guildXML struct {
	ID          int64  `xml:"id"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Leader      string `xml:"leader"`
	MemberCount int    `xml:"member_count"`
}

type memberXML struct {
	ID            int64  `xml:"id"`
	CharacterName string `xml:"character_name"`
	GuildID       int64  `xml:"guild_id"`
	Rank          string `xml:"rank"`
	JoinDate      string `xml:"join_date"`
}

func newSOAPRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.SetupTestDB(t)
	gw := store.New(db, store.Options{Timeout: 5 * time.Second}, zap.NewNop())
	svc := guild.NewService(guild.NewRepository(gw), nil, zap.NewNop())

	r := gin.New()
	soap.NewHandler(svc, "http://localhost:8000/soap", zap.NewNop()).RegisterRoutes(r)
	return r
}

func call(t *testing.T, r *gin.Engine, op string) (int, envelope, string) {
	t.Helper()
	body := `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tns="http://ashennetwork.soap/guild">
  <soap:Header/>
  <soap:Body>` + op + `</soap:Body>
</soap:Envelope>`
	return post(t, r, body)
}

func post(t *testing.T, r *gin.Engine, body string) (int, envelope, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/soap", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env, w.Body.String()
}

func createGuild(t *testing.T, r *gin.Engine, name, desc, leader string) guildXML {
	t.Helper()
	code, env, raw := call(t, r, fmt.Sprintf(
		`<tns:create_guild><name>%s</name><description>%s</description><leader>%s</leader></tns:create_guild>`,
		name, desc, leader))
	require.Equal(t, http.StatusOK, code, raw)
	require.NotNil(t, env.Body.Create, raw)
	return env.Body.Create.Guild
}

func TestCreateJoinAndListMembers(t *testing.T) {
	r := newSOAPRouter(t)

	g := createGuild(t, r, "Lords of Cinder", "United to link the First Flame", "Gwyn")
	assert.Positive(t, g.ID)
	assert.Equal(t, 1, g.MemberCount)

	code, env, raw := call(t, r, fmt.Sprintf(
		`<tns:join_guild><guild_id>%d</guild_id><character_name>Ornstein</character_name></tns:join_guild>`, g.ID))
	require.Equal(t, http.StatusOK, code, raw)
	require.NotNil(t, env.Body.Join)
	assert.Equal(t, "Character Ornstein joined guild successfully", env.Body.Join.Message)

	code, env, raw = call(t, r, fmt.Sprintf(`<tns:get_guild_members><guild_id>%d</guild_id></tns:get_guild_members>`, g.ID))
	require.Equal(t, http.StatusOK, code, raw)
	require.NotNil(t, env.Body.Members)
	require.Len(t, env.Body.Members.Members, 2)
	assert.Equal(t, "Gwyn", env.Body.Members.Members[0].CharacterName)
	assert.Equal(t, "Leader", env.Body.Members.Members[0].Rank)
	assert.Equal(t, "Ornstein", env.Body.Members.Members[1].CharacterName)
	assert.Equal(t, "Member", env.Body.Members.Members[1].Rank)
	_, err := time.Parse("2006-01-02", env.Body.Members.Members[1].JoinDate)
	assert.NoError(t, err)

	code, env, raw = call(t, r, fmt.Sprintf(`<tns:get_guild_by_id><guild_id>%d</guild_id></tns:get_guild_by_id>`, g.ID))
	require.Equal(t, http.StatusOK, code, raw)
	require.NotNil(t, env.Body.GetByID)
	assert.Equal(t, 2, env.Body.GetByID.Guild.MemberCount)
}

func TestGetAllGuilds(t *testing.T) {
	r := newSOAPRouter(t)

	code, env, raw := call(t, r, `<tns:get_all_guilds/>`)
	require.Equal(t, http.StatusOK, code, raw)
	require.NotNil(t, env.Body.GetAll)
	assert.Empty(t, env.Body.GetAll.Guilds)

	createGuild(t, r, "A", "", "LeaderA")
	createGuild(t, r, "B", "", "LeaderB")

	_, env, _ = call(t, r, `<tns:get_all_guilds></tns:get_all_guilds>`)
	require.Len(t, env.Body.GetAll.Guilds, 2)
	assert.Equal(t, "A", env.Body.GetAll.Guilds[0].Name)
}

func TestMarkupIsEscaped(t *testing.T) {
	r := newSOAPRouter(t)

	g := createGuild(t, r, "Knights &amp; &lt;Squires&gt;", "a &quot;quoted&quot; motto", "Gwyn")
	assert.Equal(t, "Knights & <Squires>", g.Name)
	assert.Equal(t, `a "quoted" motto`, g.Description)
}

func TestFaults(t *testing.T) {
	r := newSOAPRouter(t)
	g := createGuild(t, r, "Lords of Cinder", "", "Gwyn")

	cases := []struct {
		name      string
		op        string
		faultCode string
		errorCode guild.Code
	}{
		{"duplicate name", `<tns:create_guild><name>Lords of Cinder</name><leader>X</leader></tns:create_guild>`,
			soap.FaultClient, guild.CodeDuplicateName},
		{"already member", fmt.Sprintf(`<tns:join_guild><guild_id>%d</guild_id><character_name>Gwyn</character_name></tns:join_guild>`, g.ID),
			soap.FaultClient, guild.CodeAlreadyMember},
		{"unknown guild join", `<tns:join_guild><guild_id>999</guild_id><character_name>Ornstein</character_name></tns:join_guild>`,
			soap.FaultClient, guild.CodeGuildNotFound},
		{"unknown guild get", `<tns:get_guild_by_id><guild_id>999</guild_id></tns:get_guild_by_id>`,
			soap.FaultClient, guild.CodeNotFound},
		{"non-numeric id", `<tns:get_guild_by_id><guild_id>abc</guild_id></tns:get_guild_by_id>`,
			soap.FaultClient, guild.CodeInvalidInput},
		{"missing id", `<tns:get_guild_members/>`,
			soap.FaultClient, guild.CodeInvalidInput},
		{"blank leader", `<tns:create_guild><name>New</name><leader>  </leader></tns:create_guild>`,
			soap.FaultClient, guild.CodeInvalidInput},
		{"unknown operation", `<tns:delete_guild><guild_id>1</guild_id></tns:delete_guild>`,
			soap.FaultClient, guild.CodeInvalidInput},
		{"foreign namespace", `<x:get_all_guilds xmlns:x="urn:other"/>`,
			soap.FaultClient, guild.CodeInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env, raw := call(t, r, tc.op)
			assert.Equal(t, http.StatusInternalServerError, code)
			require.NotNil(t, env.Body.Fault, raw)
			assert.Equal(t, tc.faultCode, env.Body.Fault.Code)
			assert.Equal(t, string(tc.errorCode), env.Body.Fault.Detail.ErrorCode)
			assert.NotEmpty(t, env.Body.Fault.String)
		})
	}
}

func TestMalformedEnvelopes(t *testing.T) {
	r := newSOAPRouter(t)

	bodies := map[string]string{
		"not xml":      "hello",
		"not envelope": `<foo><get_all_guilds/></foo>`,
		"no body":      `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"></soap:Envelope>`,
		"empty body":   `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body></soap:Body></soap:Envelope>`,
	}
	for name, b := range bodies {
		t.Run(name, func(t *testing.T) {
			code, env, raw := post(t, r, b)
			assert.Equal(t, http.StatusInternalServerError, code)
			require.NotNil(t, env.Body.Fault, raw)
			assert.Equal(t, soap.FaultClient, env.Body.Fault.Code)
		})
	}
}

func TestWSDL(t *testing.T) {
	r := newSOAPRouter(t)

	for _, p := range []string{"/soap?wsdl", "/soap/wsdl"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		require.Equal(t, http.StatusOK, w.Code, p)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")

		var defs struct {
			TargetNamespace string `xml:"targetNamespace,attr"`
			PortType        struct {
				Operations []struct {
					Name string `xml:"name,attr"`
				} `xml:"operation"`
			} `xml:"portType"`
			Service struct {
				Port struct {
					Address struct {
						Location string `xml:"location,attr"`
					} `xml:"address"`
				} `xml:"port"`
			} `xml:"service"`
		}
		require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &defs))
		assert.Equal(t, soap.GuildNS, defs.TargetNamespace)
		assert.Len(t, defs.PortType.Operations, len(soap.Operations))
		assert.Equal(t, "http://localhost:8000/soap", defs.Service.Port.Address.Location)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/soap", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestInfo(t *testing.T) {
	r := newSOAPRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Operations []soap.OperationInfo `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Operations, 5)
	assert.Equal(t, soap.OpGetAllGuilds, resp.Operations[0].Name)
}

func TestPanicFault(t *testing.T) {
	r := gin.New()
	r.Use(mw.RecoveryWith(zap.NewNop(), soap.PanicFault))
	r.POST("/soap", func(c *gin.Context) { panic("boom") })

	code, env, raw := post(t, r, "<x/>")
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, env.Body.Fault, raw)
	assert.Equal(t, soap.FaultServer, env.Body.Fault.Code)
	assert.Equal(t, string(guild.CodeInternal), env.Body.Fault.Detail.ErrorCode)
}
