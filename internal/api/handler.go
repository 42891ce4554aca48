// Package api exposes the ledger over JSON.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lending/internal/ledger"
	"lending/internal/models"
)

type Handler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

func RegisterRoutes(r gin.IRoutes, l *ledger.Ledger, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{ledger: l, logger: logger}

	// View Status
	r.GET("/status", h.GetStatus)
	// History
	r.GET("/records", h.ListRecords)

	r.POST("/checkout", h.Checkout)
	r.POST("/return", h.Return)
	r.POST("/transfer", h.Transfer)
}

// GET /status
func (h *Handler) GetStatus(c *gin.Context) {
	active, ok, err := h.ledger.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	res := StatusResponse{
		Asset:     h.ledger.AssetName(),
		Available: !ok,
		Holder:    ledger.NoHolder,
	}
	if ok {
		res.Holder = active.HolderName
		res.Record = &active
	}
	c.JSON(http.StatusOK, res)
}

// GET /records
func (h *Handler) ListRecords(c *gin.Context) {
	records, err := h.ledger.Records(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []models.LoanRecord{}
	}
	c.JSON(http.StatusOK, RecordsResponse{Records: records})
}

// POST /checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorDTO{Error: "invalid json"})
		return
	}

	if err := h.ledger.CheckoutAvailable(c.Request.Context(), req.Name); err != nil {
		h.fail(c, err)
		return
	}
	holder, err := h.ledger.ActiveHolder(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, CheckoutResponse{Holder: holder})
}

// POST /return
func (h *Handler) Return(c *gin.Context) {
	holder, err := h.ledger.ReturnActive(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ReturnResponse{Holder: holder})
}

// POST /transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorDTO{Error: "invalid json"})
		return
	}

	from, err := h.ledger.TransferActive(c.Request.Context(), req.To)
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := h.ledger.ActiveHolder(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TransferResponse{From: from, To: to})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("path", c.FullPath()),
		)
	}
	c.JSON(status, errorDTO{Error: err.Error()})
}

// ToHTTPStatus maps ledger errors to response codes
func ToHTTPStatus(err error) int {
	var held *ledger.AlreadyCheckedOutError
	switch {
	case errors.Is(err, ledger.ErrEmptyName):
		return http.StatusBadRequest
	case errors.As(err, &held), errors.Is(err, ledger.ErrNotCheckedOut):
		return http.StatusConflict
	case ledger.IsStoreError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
