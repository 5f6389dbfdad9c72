package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/marketplace/internal/adapter/handler/middleware"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
)

type OrderHandler struct {
	checkout *service.CheckoutService
	delivery *service.DeliveryService
	ledger   *service.LedgerService
}

func NewOrderHandler(checkout *service.CheckoutService, delivery *service.DeliveryService, ledger *service.LedgerService) *OrderHandler {
	return &OrderHandler{checkout: checkout, delivery: delivery, ledger: ledger}
}

type placeOrderReq struct {
	Products        []service.CartItem `json:"products" binding:"required"`
	TotalAmount     int64              `json:"totalAmount"`
	ShippingAddress *domain.Address    `json:"shippingAddress"`
}

type placeOrderResp struct {
	OrderID          string `json:"orderId"`
	TotalAmount      int64  `json:"totalAmount"`
	CommissionAmount int64  `json:"commissionAmount"`
	DeliveryStatus   string `json:"deliveryStatus"`
}

// verifyReq accepts the code under either name clients send it as.
type verifyReq struct {
	Code    string `json:"code"`
	DACCode string `json:"dacCode"`
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req placeOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad_request")
		return
	}

	in := service.PlaceOrderInput{
		BuyerID:        p.UserID,
		Items:          req.Products,
		TotalAmount:    req.TotalAmount,
		IdempotencyKey: c.GetHeader("X-Idempotency-Key"),
	}
	if req.ShippingAddress != nil {
		in.ShippingAddress = *req.ShippingAddress
	}

	order, err := h.checkout.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, placeOrderResp{
		OrderID:          order.ID,
		TotalAmount:      order.TotalAmount,
		CommissionAmount: order.CommissionAmount,
		DeliveryStatus:   string(order.DeliveryStatus),
	})
}

func (h *OrderHandler) BuyerOrders(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	orders, err := h.ledger.BuyerOrders(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	order, err := h.ledger.GetOrder(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ResendCode issues a fresh delivery code and emails it to the buyer.
func (h *OrderHandler) ResendCode(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	if err := h.delivery.Resend(c.Request.Context(), p, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "delivery code sent"})
}

// Verify marks the order delivered when the seller presents the buyer's code.
func (h *OrderHandler) Verify(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad_request")
		return
	}
	code := req.Code
	if code == "" {
		code = req.DACCode
	}

	order, err := h.delivery.Verify(c.Request.Context(), c.Param("id"), p.UserID, code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "order marked as delivered",
		"orderId":        order.ID,
		"deliveryStatus": order.DeliveryStatus,
		"deliveredAt":    order.DeliveredAt,
	})
}
