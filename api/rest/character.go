package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/character"
	"github.com/kasuganosora/ashenguild/guild"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/model"
)

// Link points a client at a related resource.
type Link struct {
	Rel    string `json:"rel"`
	Href   string `json:"href"`
	Method string `json:"method,omitempty"`
}

type characterView struct {
	model.Character
	Links []Link `json:"links"`
}

type itemView struct {
	model.Item
	Links []Link `json:"links"`
}

func characterLinks(id int64) []Link {
	return []Link{
		{Rel: "self", Href: fmt.Sprintf("/api/characters/%d", id)},
		{Rel: "items", Href: fmt.Sprintf("/api/characters/%d/items", id)},
	}
}

func viewCharacter(c model.Character) characterView {
	return characterView{Character: c, Links: characterLinks(c.ID)}
}

func viewItem(it model.Item) itemView {
	return itemView{Item: it, Links: []Link{{Rel: "self", Href: fmt.Sprintf("/api/items/%d", it.ID)}}}
}

// CharacterHandler handles character and item REST endpoints.
type CharacterHandler struct {
	svc *character.Service
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(svc *character.Service) *CharacterHandler {
	return &CharacterHandler{svc: svc}
}

// RegisterRoutes mounts /characters and /items on rg (usually /api).
func (h *CharacterHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/characters", h.List)
	rg.POST("/characters", h.Create)
	rg.GET("/characters/:id/items", h.Items)
	rg.POST("/characters/:id/items", h.AddItem)
	rg.GET("/items", h.ListItems)
	rg.POST("/items", h.CreateItem)
}

type createCharacterRequest struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type addItemRequest struct {
	ItemID int64 `json:"item_id"`
}

type createItemRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// List handles GET /api/characters.
func (h *CharacterHandler) List(c *gin.Context) {
	chars, err := h.svc.ListCharacters(c.Request.Context())
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	out := make([]characterView, len(chars))
	for i, ch := range chars {
		out[i] = viewCharacter(ch)
	}
	c.JSON(http.StatusOK, gin.H{"characters": out})
}

// Create handles POST /api/characters.
func (h *CharacterHandler) Create(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body", "code": guild.CodeInvalidInput})
		return
	}

	rec := mw.AuditRecord{Action: audit.ActionCreateCharacter, CharacterName: req.Name, Request: req}
	defer func() { mw.SetAudit(c, rec) }()

	ch, err := h.svc.CreateCharacter(c.Request.Context(), req.Name, req.Level)
	if err != nil {
		rec.Error = err.Error()
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	rec.Response = ch
	c.JSON(http.StatusCreated, gin.H{"character": viewCharacter(*ch)})
}

// Items handles GET /api/characters/:id/items.
func (h *CharacterHandler) Items(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	inv, err := h.svc.Inventory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	items := make([]itemView, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = viewItem(it)
	}
	c.JSON(http.StatusOK, gin.H{
		"character": viewCharacter(inv.Character),
		"items":     items,
		"links": []Link{
			{Rel: "self", Href: "/api/characters/" + strconv.FormatInt(id, 10) + "/items"},
			{Rel: "add-item", Href: "/api/characters/" + strconv.FormatInt(id, 10) + "/items", Method: http.MethodPost},
		},
	})
}

// AddItem handles POST /api/characters/:id/items. A new item answers 201; an
// item the character already carries answers 200 and changes nothing.
func (h *CharacterHandler) AddItem(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body", "code": guild.CodeInvalidInput})
		return
	}

	rec := mw.AuditRecord{Action: audit.ActionAddItem, Request: gin.H{"character_id": id, "item_id": req.ItemID}}
	defer func() { mw.SetAudit(c, rec) }()

	res, err := h.svc.AddItem(c.Request.Context(), id, req.ItemID)
	if err != nil {
		rec.Error = err.Error()
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	rec.CharacterName = res.Character.Name
	rec.Response = res
	status := http.StatusOK
	if res.Added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"message": res.Message,
		"added":   res.Added,
		"links":   characterLinks(id),
	})
}

// ListItems handles GET /api/items.
func (h *CharacterHandler) ListItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context())
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	out := make([]itemView, len(items))
	for i, it := range items {
		out[i] = viewItem(it)
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// CreateItem handles POST /api/items.
func (h *CharacterHandler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body", "code": guild.CodeInvalidInput})
		return
	}

	rec := mw.AuditRecord{Action: audit.ActionCreateItem, Request: req}
	defer func() { mw.SetAudit(c, rec) }()

	it, err := h.svc.CreateItem(c.Request.Context(), req.Name, req.Type)
	if err != nil {
		rec.Error = err.Error()
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	rec.Response = it
	c.JSON(http.StatusCreated, gin.H{"item": viewItem(*it)})
}
