package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
)

type statusRequest struct {
	Action string `json:"action" validate:"required,oneof=accept cancel complete"`
	Reason string `json:"reason" validate:"omitempty,oneof=unavailable customer closed busy others"`
	Notes  string `json:"notes" validate:"max=1000"`
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (h *Handler) countTransition(ctx context.Context, to order.Status) {
	h.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
}

func (h *Handler) writeOrder(w http.ResponseWriter, o *order.Order) {
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("order")
		h.encodeOrder(e, o)
	})
}

func (h *Handler) writeOrderList(w http.ResponseWriter, list []order.Order) {
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("orders")
		h.encodeOrders(e, list)
	})
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.orders.Confirm(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countTransition(r.Context(), o.Status)
	h.writeOrder(w, o)
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	list, err := h.orders.ListHistory(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOrderList(w, list)
}

// kitchenOrders lists paid and accepted orders, or every checked-out order
// when history=true.
func (h *Handler) kitchenOrders(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	history, err := parseBool("history", r.URL.Query().Get("history"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter := order.KitchenFilter{ActiveOnly: true}
	if history {
		filter = order.KitchenFilter{}
	}
	list, err := h.orders.ListForKitchen(r.Context(), p, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOrderList(w, list)
}

func (h *Handler) kitchenStatus(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req statusRequest
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "action":
			req.Action, err = d.Str()
		case "reason":
			req.Reason, err = d.Str()
		case "notes":
			req.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.validate.Struct(req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var cancel *order.CancelDetails
	if req.Reason != "" || req.Notes != "" {
		cancel = &order.CancelDetails{Reason: order.CancelReason(req.Reason), Notes: req.Notes}
	}
	o, err := h.orders.KitchenTransition(r.Context(), p, id, order.Action(req.Action), cancel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countTransition(r.Context(), o.Status)
	h.writeOrder(w, o)
}
