package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"currencyapi/internal/model"
	"currencyapi/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// createInput a POST body that builds a new entity
type createInput[T any] interface {
	Entity() *T
}

// updateInput a PATCH body; absent fields yield no change
type updateInput interface {
	Changes() model.Changes
}

// EntityHandler list, read, create, patch and delete for one entity type.
// C and U are the POST and PATCH bodies.
type EntityHandler[T model.Entity, C createInput[T], U updateInput] struct {
	db func() *gorm.DB
}

func newEntityHandler[T model.Entity, C createInput[T], U updateInput](db func() *gorm.DB) *EntityHandler[T, C, U] {
	if db == nil {
		db = model.GetDB
	}
	return &EntityHandler[T, C, U]{db: db}
}

func (h *EntityHandler[T, C, U]) store() *model.Store[T] {
	return model.NewStore[T](h.db())
}

// Register mounts the five routes on g; list and detail go through their caches
func (h *EntityHandler[T, C, U]) Register(g *gin.RouterGroup, listCache, detailCache gin.HandlerFunc) {
	g.GET("/", listCache, h.List)
	g.GET("/:id", detailCache, h.Get)
	g.POST("/", h.Create)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List filtered, sorted and paginated entities
func (h *EntityHandler[T, C, U]) List(c *gin.Context) {
	params := util.NormalizeListParams(model.ParseParams(c.Request.URL.RawQuery))

	items, err := model.Collect(h.store().ReadAll(c.Request.Context(), params))
	if err != nil {
		h.readFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Get one entity; include_* query flags load relations
func (h *EntityHandler[T, C, U]) Get(c *gin.Context) {
	item, ok := h.load(c, model.ParseParams(c.Request.URL.RawQuery))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, item)
}

// Create 201 with the stored entity
func (h *EntityHandler[T, C, U]) Create(c *gin.Context) {
	var in C
	if err := c.ShouldBindJSON(&in); err != nil {
		util.ValidationError(c, "body", err)
		return
	}

	created, err := h.store().Create(c.Request.Context(), in.Entity())
	if err != nil {
		h.writeFailed(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update applies the fields present in the body. An empty body or {}
// returns the entity untouched.
func (h *EntityHandler[T, C, U]) Update(c *gin.Context) {
	item, ok := h.load(c, nil)
	if !ok {
		return
	}

	var in U
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		util.ValidationError(c, "body", err)
		return
	}

	updated, err := h.store().Update(c.Request.Context(), item, in.Changes())
	if err != nil {
		h.writeFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete 204; owned rows are removed by the database
func (h *EntityHandler[T, C, U]) Delete(c *gin.Context) {
	item, ok := h.load(c, nil)
	if !ok {
		return
	}

	if err := h.store().Delete(c.Request.Context(), item); err != nil {
		h.writeFailed(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// load resolves :id or writes 422/404/500 and reports false
func (h *EntityHandler[T, C, U]) load(c *gin.Context, params model.Params) (*T, bool) {
	id, ok := util.ParseID(c.Param("id"))
	if !ok {
		util.ValidationError(c, "path", &model.FilterError{
			Field: "id",
			Value: c.Param("id"),
			Err:   errors.New("value is not a valid integer"),
		})
		return nil, false
	}

	item, err := h.store().ReadByID(c.Request.Context(), id, params)
	if err != nil {
		h.readFailed(c, err)
		return nil, false
	}
	if item == nil {
		util.NotFound(c, h.store().Schema().Name)
		return nil, false
	}
	return item, true
}

func (h *EntityHandler[T, C, U]) readFailed(c *gin.Context, err error) {
	var filterErr *model.FilterError
	if errors.As(err, &filterErr) {
		util.ValidationError(c, "query", err)
		return
	}
	_ = c.Error(err)
	slog.Error("read failed", "entity", h.store().Schema().Name, "error", err)
	util.ServerError(c, "")
}

func (h *EntityHandler[T, C, U]) writeFailed(c *gin.Context, err error) {
	_ = c.Error(err)
	if !model.IsIntegrity(err) {
		slog.Error("write failed", "entity", h.store().Schema().Name, "error", err)
	}
	util.BadRequest(c, err)
}
