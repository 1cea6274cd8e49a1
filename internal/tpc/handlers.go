package tpc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
)

// Handler exposes a coordinator over HTTP.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api/tpc")
	g.POST("/commit", h.Commit)
	g.POST("/rollback", h.Rollback)
	g.GET("/active", h.ListActive)
	g.GET("/records/:id", h.Record)
}

func (h *Handler) Commit(c *gin.Context) {
	var req api.FinalizeRequest
	if !rpc.BindJSON(c, &req) {
		return
	}
	if err := h.svc.Commit(c.Request.Context(), req.ID); err != nil {
		rpc.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FinalizeResponse{ID: req.ID, Status: string(StatusCommitted)})
}

func (h *Handler) Rollback(c *gin.Context) {
	var req api.FinalizeRequest
	if !rpc.BindJSON(c, &req) {
		return
	}
	if err := h.svc.Rollback(c.Request.Context(), req.ID); err != nil {
		rpc.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FinalizeResponse{ID: req.ID, Status: string(StatusRolledBack)})
}

func (h *Handler) ListActive(c *gin.Context) {
	active, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		rpc.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, active)
}

func (h *Handler) Record(c *gin.Context) {
	rec, err := h.svc.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		rpc.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToAPI())
}
