package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// RegisterRoutes monta as rotas do serviço de pagamentos
func RegisterRoutes(r gin.IRouter, payments *PaymentUseCase, accounts *AccountUseCase, coordinator tpc.Service) {
	r.POST("/api/payments", HandleCreatePayment(payments))
	r.GET("/api/payments", HandleListPayments(payments))
	r.GET("/api/payments/:id", HandleGetPayment(payments))
	r.POST("/api/payments/:id/approve", HandlePaymentAction(payments.Approve))
	r.POST("/api/payments/:id/cancel", HandlePaymentAction(payments.Cancel))
	r.POST("/api/payments/:id/pay", HandlePay(payments))

	r.GET("/api/accounts", HandleListAccounts(accounts))
	r.POST("/api/accounts/top-up", HandleTopUpAccount(accounts))

	tpc.NewHandler(coordinator).Register(r)
}

// HandleCreatePayment handler para criação de pagamento
func HandleCreatePayment(uc *PaymentUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.CreatePaymentRequest
		if !rpc.BindJSON(c, &req) {
			return
		}

		payment, err := uc.Create(c.Request.Context(), req)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment.ToAPI())
	}
}

// HandlePaymentAction adapta approve e cancel, que compartilham a mesma forma
func HandlePaymentAction(action func(ctx context.Context, id string, preparedID *string) (*Payment, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.ActionRequest
		if !rpc.BindOptionalJSON(c, &req) {
			return
		}

		payment, err := action(c.Request.Context(), c.Param("id"), req.PreparedTransactionID)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment.ToAPI())
	}
}

func HandlePay(uc *PaymentUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.ActionRequest
		if !rpc.BindOptionalJSON(c, &req) {
			return
		}

		res, err := uc.Pay(c.Request.Context(), c.Param("id"), req.PreparedTransactionID)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.PayResponse{Payment: res.Payment.ToAPI(), Balance: res.Balance})
	}
}

func HandleGetPayment(uc *PaymentUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		payment, err := uc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment.ToAPI())
	}
}

func HandleListPayments(uc *PaymentUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := rpc.PageQuery(c)
		if !ok {
			return
		}

		payments, err := uc.List(c.Request.Context(), page)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		out := make([]api.Payment, 0, len(payments))
		for i := range payments {
			out = append(out, payments[i].ToAPI())
		}
		c.JSON(http.StatusOK, out)
	}
}

func HandleListAccounts(uc *AccountUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := rpc.PageQuery(c)
		if !ok {
			return
		}

		accounts, err := uc.List(c.Request.Context(), page)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		out := make([]api.Account, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, a.ToAPI())
		}
		c.JSON(http.StatusOK, out)
	}
}

// HandleTopUpAccount handler para recarga de saldo
func HandleTopUpAccount(uc *AccountUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.TopUpAccountRequest
		if !rpc.BindJSON(c, &req) {
			return
		}

		acct, err := uc.TopUp(c.Request.Context(), req.ClientID, req.Amount)
		if err != nil {
			rpc.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.TopUpAccountResponse{ClientID: acct.ClientID, Balance: acct.Available()})
	}
}
