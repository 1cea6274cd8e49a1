package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// RegisterRoutes monta as rotas do orquestrador de pedidos
func RegisterRoutes(r gin.IRouter, orders *OrderUseCase, coordinator tpc.Service) {
	r.POST("/api/orders", HandleCreateOrder(orders))
	r.GET("/api/orders", HandleListOrders(orders))
	r.GET("/api/orders/:id", HandleGetOrder(orders))
	r.POST("/api/orders/:id/approve", HandleOrderAction(orders.Approve))
	r.POST("/api/orders/:id/cancel", HandleOrderAction(orders.Cancel))
	r.POST("/api/orders/:id/release", HandleOrderAction(orders.Release))
	r.POST("/api/orders/:id/resume", HandleOrderAction(orders.Resume))

	tpc.NewHandler(coordinator).Register(r)
}

// HandleCreateOrder handler para criação de pedido
func HandleCreateOrder(uc *OrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.CreateOrderRequest
		if !rpc.BindJSON(c, &req) {
			return
		}

		order, err := uc.Create(c.Request.Context(), req)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order.ToAPI())
	}
}

// HandleOrderAction adapta approve, cancel, release e resume
func HandleOrderAction(action func(ctx context.Context, id string, twoPhase bool) (*Order, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.OrderActionRequest
		if !rpc.BindOptionalJSON(c, &req) {
			return
		}

		order, err := action(c.Request.Context(), c.Param("id"), req.TwoPhaseCommit)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToAPI())
	}
}

func HandleGetOrder(uc *OrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := uc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ToAPI())
	}
}

// HandleListOrders aceita os filtros opcionais status, customer_id, page e size
func HandleListOrders(uc *OrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := rpc.PageQuery(c)
		if !ok {
			return
		}

		filter := OrderFilter{CustomerID: c.Query("customer_id")}
		if raw := c.Query("status"); raw != "" {
			status, err := parseOrderStatus(raw)
			if err != nil {
				rpc.WriteError(c, err)
				return
			}
			filter.Status = &status
		}

		orders, err := uc.List(c.Request.Context(), filter, page)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		out := make([]api.Order, 0, len(orders))
		for i := range orders {
			out = append(out, orders[i].ToAPI())
		}
		c.JSON(http.StatusOK, out)
	}
}

func parseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(raw))
	switch s {
	case OrderCreating, OrderCreated, OrderApproving, OrderApproved, OrderReleasing,
		OrderReleased, OrderInsufficient, OrderCancelling, OrderCancelled:
		return s, nil
	}
	return "", apperr.InvalidInput("unknown order status %q", raw)
}
