// README: Order handlers for create/get/cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"porter/internal/modules/cancellation"
	"porter/internal/modules/order"
	"porter/internal/types"
)

type OrderHandler struct {
	orders *order.Service
	cancel *cancellation.Service
}

func NewOrderHandler(orders *order.Service, cancel *cancellation.Service) *OrderHandler {
	return &OrderHandler{orders: orders, cancel: cancel}
}

type itemReq struct {
	Kind        string     `json:"kind"`
	Name        string     `json:"name"`
	Price       int64      `json:"price"`
	Quantity    int        `json:"quantity"`
	MoverID     string     `json:"mover_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type createOrderReq struct {
	CustomerID    string    `json:"customer_id"`
	PaymentMethod string    `json:"payment_method"`
	Items         []itemReq `json:"items"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	items := make([]order.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		in := order.ItemInput{
			Kind:        order.ItemKind(it.Kind),
			Name:        it.Name,
			Price:       it.Price,
			Quantity:    it.Quantity,
			ScheduledAt: it.ScheduledAt,
		}
		if it.MoverID != "" {
			m := types.ID(it.MoverID)
			in.MoverID = &m
		}
		items = append(items, in)
	}

	id, err := h.orders.Create(c.Request.Context(), order.CreateCommand{
		CustomerID:    types.ID(req.CustomerID),
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Items:         items,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"order_id": id, "status": order.StatusPlaced})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := types.ID(c.Param("id"))
	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	timeline, err := h.orders.Timeline(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	events := make([]gin.H, 0, len(timeline))
	for _, e := range timeline {
		events = append(events, gin.H{"from": e.FromStatus, "to": e.ToStatus, "at": e.CreatedAt})
	}
	writeJSON(c, http.StatusOK, gin.H{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_method": o.PaymentMethod,
		"total_amount":   o.Total.Amount,
		"currency":       o.Total.Currency,
		"tracking":       o.TrackingOn,
		"timeline":       events,
	})
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req cancelReq
	_ = c.ShouldBindJSON(&req) // body is optional

	out, err := h.cancel.Cancel(c.Request.Context(), cancellation.CancelCommand{
		OrderID: types.ID(c.Param("id")),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}
