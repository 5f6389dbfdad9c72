package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/marketplace/internal/adapter/handler/middleware"
	"github.com/rl1809/marketplace/internal/core/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type LedgerHandler struct {
	ledger *service.LedgerService
}

func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

func (h *LedgerHandler) SellerOrders(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	orders, err := h.ledger.SellerOrders(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *LedgerHandler) Transactions(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	orders, err := h.ledger.Transactions(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// ExportTransactions streams the ledger as an xlsx attachment.
// The workbook is buffered so a failure still yields a JSON error.
func (h *LedgerHandler) ExportTransactions(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var buf bytes.Buffer
	if err := h.ledger.ExportTransactions(c.Request.Context(), p, &buf); err != nil {
		writeError(c, err)
		return
	}

	name := fmt.Sprintf("transactions-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
