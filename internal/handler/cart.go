package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
)

type cartRequest struct {
	ItemID       int64  `json:"item_id" validate:"required,gt=0"`
	ForceNew     bool   `json:"force_new"`
	Instructions string `json:"instructions" validate:"max=500"`
}

func (h *Handler) decodeCartRequest(w http.ResponseWriter, r *http.Request) (cartRequest, error) {
	var req cartRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "item_id":
			req.ItemID, err = decodeID(d, key)
		case "force_new":
			req.ForceNew, err = decodeBool(d, key)
		case "instructions":
			req.Instructions, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, err
	}
	return req, h.validate.Struct(req)
}

func (h *Handler) countMutation(ctx context.Context, op string) {
	h.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (h *Handler) writeCartResult(w http.ResponseWriter, o *order.Order) {
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("quantity")
		e.Int(o.Quantity())
		e.FieldStart("total_price")
		encodeMoney(e, o.Total)
		e.FieldStart("cart")
		h.encodeOrder(e, o)
	})
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	req, err := h.decodeCartRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.orders.AddItem(r.Context(), p, req.ItemID, req.ForceNew)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countMutation(r.Context(), "add")
	h.writeCartResult(w, o)
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	req, err := h.decodeCartRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.orders.RemoveItem(r.Context(), p, req.ItemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countMutation(r.Context(), "remove")
	h.writeCartResult(w, o)
}

func (h *Handler) setInstructions(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	req, err := h.decodeCartRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.orders.SetInstructions(r.Context(), p, req.ItemID, req.Instructions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countMutation(r.Context(), "instructions")
	h.writeCartResult(w, o)
}

// getCart returns the open cart, or an empty one when the customer has none.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	o, err := h.orders.Cart(r.Context(), p)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeSuccess(w, func(e *jx.Encoder) {
			e.FieldStart("cart")
			e.Null()
		})
		return
	case err != nil:
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("cart")
		h.encodeOrder(e, o)
	})
}

func (h *Handler) cartQuantity(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	qty, total, err := h.orders.CurrentQuantity(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("quantity")
		e.Int(qty)
		e.FieldStart("total_price")
		encodeMoney(e, total)
		e.ObjEnd()
	})
}

func (h *Handler) cartItems(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	quantities, err := h.orders.ItemQuantities(ctx, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	totals, err := h.orders.ItemTotals(ctx, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("quantities")
		e.ObjStart()
		for id, q := range quantities {
			e.FieldStart(formatID(id))
			e.Int(q)
		}
		e.ObjEnd()
		e.FieldStart("total_prices")
		e.ObjStart()
		for id, t := range totals {
			e.FieldStart(formatID(id))
			encodeMoney(e, t)
		}
		e.ObjEnd()
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	o, err := h.orders.ConfirmCart(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countTransition(r.Context(), o.Status)
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("order")
		h.encodeOrder(e, o)
	})
}
