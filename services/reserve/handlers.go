package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// RegisterRoutes monta as rotas do serviço de reservas
func RegisterRoutes(r gin.IRouter, reserves *ReserveUseCase, warehouse *WarehouseUseCase, coordinator tpc.Service) {
	r.POST("/api/reserves", HandleCreateReserve(reserves))
	r.GET("/api/reserves", HandleListReserves(reserves))
	r.GET("/api/reserves/:id", HandleGetReserve(reserves))
	r.POST("/api/reserves/:id/approve", HandleReserveAction(reserves.Approve))
	r.POST("/api/reserves/:id/cancel", HandleReserveAction(reserves.Cancel))
	r.POST("/api/reserves/:id/release", HandleReserveAction(reserves.Release))

	r.GET("/api/items", HandleListItems(warehouse))
	r.GET("/api/items/:id/cost", HandleItemCost(warehouse))
	r.POST("/api/items/top-up", HandleTopUpItem(warehouse))

	tpc.NewHandler(coordinator).Register(r)
}

func HandleCreateReserve(uc *ReserveUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.CreateReserveRequest
		if !rpc.BindJSON(c, &req) {
			return
		}

		res, err := uc.Create(c.Request.Context(), req)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res.ToAPI())
	}
}

// HandleReserveAction adapta approve, cancel e release
func HandleReserveAction(action func(ctx context.Context, id string, preparedID *string) (*Reserve, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.ActionRequest
		if !rpc.BindOptionalJSON(c, &req) {
			return
		}

		res, err := action(c.Request.Context(), c.Param("id"), req.PreparedTransactionID)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, res.ToAPI())
	}
}

func HandleGetReserve(uc *ReserveUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := uc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, res.ToAPI())
	}
}

func HandleListReserves(uc *ReserveUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := rpc.PageQuery(c)
		if !ok {
			return
		}

		reserves, err := uc.List(c.Request.Context(), page)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		out := make([]api.Reserve, 0, len(reserves))
		for i := range reserves {
			out = append(out, reserves[i].ToAPI())
		}
		c.JSON(http.StatusOK, out)
	}
}

func HandleListItems(uc *WarehouseUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := rpc.PageQuery(c)
		if !ok {
			return
		}

		items, err := uc.List(c.Request.Context(), page)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		out := make([]api.WarehouseItem, 0, len(items))
		for _, it := range items {
			out = append(out, it.ToAPI())
		}
		c.JSON(http.StatusOK, out)
	}
}

func HandleItemCost(uc *WarehouseUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		cost, err := uc.GetItemCost(c.Request.Context(), id)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.ItemCost{ItemID: id, Cost: cost})
	}
}

func HandleTopUpItem(uc *WarehouseUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.TopUpItemRequest
		if !rpc.BindJSON(c, &req) {
			return
		}

		item, err := uc.TopUp(c.Request.Context(), req.ItemID, req.Amount)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.TopUpItemResponse{ItemID: item.ID, Amount: item.Amount})
	}
}
