package soap

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/guild"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"go.uber.org/zap"
)

// maxRequestBytes caps the size of an inbound envelope.
const maxRequestBytes = 1 << 20

// Operation names exposed by the service.
const (
	OpGetAllGuilds    = "get_all_guilds"
	OpGetGuildByID    = "get_guild_by_id"
	OpCreateGuild     = "create_guild"
	OpJoinGuild       = "join_guild"
	OpGetGuildMembers = "get_guild_members"
)

// OperationInfo describes one operation for /info.
type OperationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Operations lists the operations in WSDL order.
var Operations = []OperationInfo{
	{OpGetAllGuilds, "List every guild"},
	{OpGetGuildByID, "Fetch one guild by id"},
	{OpCreateGuild, "Create a guild; the leader becomes its first member"},
	{OpJoinGuild, "Add a character to a guild"},
	{OpGetGuildMembers, "List the members of a guild"},
}

type operation func(h *Handler, c *gin.Context, d *xml.Decoder, start *xml.StartElement) (interface{}, error)

var operations = map[string]operation{
	OpGetAllGuilds:    (*Handler).getAllGuilds,
	OpGetGuildByID:    (*Handler).getGuildByID,
	OpCreateGuild:     (*Handler).createGuild,
	OpJoinGuild:       (*Handler).joinGuild,
	OpGetGuildMembers: (*Handler).getGuildMembers,
}

// Handler serves the document/literal SOAP endpoint for guild operations.
type Handler struct {
	svc      *guild.Service
	location string
	logger   *zap.Logger
}

// NewHandler creates a Handler. location is advertised as the soap:address
// in the WSDL.
func NewHandler(svc *guild.Service, location string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, location: location, logger: logger}
}

// RegisterRoutes mounts POST /soap, GET /soap?wsdl, GET /soap/wsdl and GET /info.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/soap", h.Serve)
	r.GET("/soap", h.WSDLQuery)
	r.GET("/soap/wsdl", h.WSDL)
	r.GET("/info", h.Info)
}

// Serve handles POST /soap.
func (h *Handler) Serve(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)
	d := xml.NewDecoder(c.Request.Body)

	start, err := readOperation(d)
	if err != nil {
		h.writeFault(c, FaultClient, "malformed SOAP request: "+err.Error(), guild.CodeInvalidInput)
		return
	}
	if start.Name.Space != "" && start.Name.Space != GuildNS {
		h.writeFault(c, FaultClient, "unknown namespace "+start.Name.Space, guild.CodeInvalidInput)
		return
	}
	op, ok := operations[start.Name.Local]
	if !ok {
		h.writeFault(c, FaultClient, "Unknown operation "+start.Name.Local, guild.CodeInvalidInput)
		return
	}

	resp, err := op(h, c, d, &start)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.write(c, http.StatusOK, newEnvelope(resp))
}

func (h *Handler) getAllGuilds(c *gin.Context, d *xml.Decoder, start *xml.StartElement) (interface{}, error) {
	if err := d.Skip(); err != nil {
		return nil, badRequest(err)
	}
	guilds, err := h.svc.ListGuilds(c.Request.Context())
	if err != nil {
		return nil, err
	}
	resp := &getAllGuildsResponse{Guilds: make([]guildXML, 0, len(guilds))}
	for i := range guilds {
		resp.Guilds = append(resp.Guilds, toGuildXML(&guilds[i]))
	}
	return resp, nil
}

func (h *Handler) getGuildByID(c *gin.Context, d *xml.Decoder, start *xml.StartElement) (interface{}, error) {
	var req guildIDRequest
	if err := d.DecodeElement(&req, start); err != nil {
		return nil, badRequest(err)
	}
	id, err := parseGuildID(req.GuildID)
	if err != nil {
		return nil, badRequest(err)
	}
	g, err := h.svc.GetGuild(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	return &getGuildByIDResponse{Guild: toGuildXML(g)}, nil
}

func (h *Handler) createGuild(c *gin.Context, d *xml.Decoder, start *xml.StartElement) (interface{}, error) {
	var req createGuildRequest
	if err := d.DecodeElement(&req, start); err != nil {
		return nil, badRequest(err)
	}

	rec := mw.AuditRecord{Action: audit.ActionCreateGuild, CharacterName: req.Leader, Request: req}
	defer func() { mw.SetAudit(c, rec) }()

	g, err := h.svc.CreateGuild(c.Request.Context(), req.Name, req.Description, req.Leader)
	if err != nil {
		rec.Error = err.Error()
		return nil, err
	}
	rec.GuildID = &g.ID
	rec.Response = g
	return &createGuildResponse{Guild: toGuildXML(g)}, nil
}

func (h *Handler) joinGuild(c *gin.Context, d *xml.Decoder, start *xml.StartElement) (interface{}, error) {
	var req joinGuildRequest
	if err := d.DecodeElement(&req, start); err != nil {
		return nil, badRequest(err)
	}
	id, err := parseGuildID(req.GuildID)
	if err != nil {
		return nil, badRequest(err)
	}

	rec := mw.AuditRecord{Action: audit.ActionJoinGuild, GuildID: &id, CharacterName: req.CharacterName, Request: req}
	defer func() { mw.SetAudit(c, rec) }()

	res, err := h.svc.JoinGuild(c.Request.Context(), id, req.CharacterName)
	if err != nil {
		rec.Error = err.Error()
		return nil, err
	}
	rec.Response = res
	return &joinGuildResponse{Message: res.Message}, nil
}

func (h *Handler) getGuildMembers(c *gin.Context, d *xml.Decoder, start *xml.StartElement) (interface{}, error) {
	var req guildIDRequest
	if err := d.DecodeElement(&req, start); err != nil {
		return nil, badRequest(err)
	}
	id, err := parseGuildID(req.GuildID)
	if err != nil {
		return nil, badRequest(err)
	}
	members, err := h.svc.ListMembers(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	resp := &getGuildMembersResponse{Members: make([]memberXML, 0, len(members))}
	for i := range members {
		resp.Members = append(resp.Members, toMemberXML(&members[i]))
	}
	return resp, nil
}

// Info handles GET /info.
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":    "GuildService",
		"namespace":  GuildNS,
		"endpoint":   h.location,
		"wsdl":       h.location + "?wsdl",
		"operations": Operations,
	})
}

func badRequest(err error) error {
	return &guild.Error{Code: guild.CodeInvalidInput, Message: err.Error()}
}

// writeError maps a guild error onto a fault. Caller mistakes are Client
// faults, everything else is a Server fault.
func (h *Handler) writeError(c *gin.Context, err error) {
	code := guild.CodeOf(err)
	msg := "internal error"
	var ge *guild.Error
	if errors.As(err, &ge) && code != guild.CodeInternal {
		msg = ge.Message
	}
	faultCode := FaultClient
	switch code {
	case guild.CodeStoreUnavailable:
		faultCode = FaultServer
		c.Header("Retry-After", strconv.Itoa(mw.RetryAfterSeconds(h.svc.RetryAfter())))
	case guild.CodeInternal:
		faultCode = FaultServer
	}
	_ = c.Error(err)
	h.writeFault(c, faultCode, msg, code)
}

func (h *Handler) writeFault(c *gin.Context, faultCode, msg string, code guild.Code) {
	f := &fault{Code: faultCode, String: msg}
	if code != "" {
		f.Detail = &faultDetail{ErrorCode: string(code)}
	}
	h.write(c, http.StatusInternalServerError, newEnvelope(f))
}

func (h *Handler) write(c *gin.Context, status int, env envelope) {
	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		h.logger.Error("soap: encode response", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "text/xml; charset=utf-8", append([]byte(xml.Header), out...))
}

// PanicFault answers a request whose handler panicked with a soap:Server
// fault. Use it with middleware.RecoveryWith on the SOAP routes.
func PanicFault(c *gin.Context) {
	f := &fault{
		Code:   FaultServer,
		String: "internal error",
		Detail: &faultDetail{ErrorCode: string(guild.CodeInternal)},
	}
	out, err := xml.MarshalIndent(newEnvelope(f), "", "  ")
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusInternalServerError, "text/xml; charset=utf-8", append([]byte(xml.Header), out...))
}
