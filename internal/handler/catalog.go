package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) listRestaurants(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.ListRestaurants(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("restaurants")
		e.ArrStart()
		for i := range list {
			h.encodeRestaurant(e, &list[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) restaurantMenu(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.catalog.Menu(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var quantities map[int64]int
	if p, ok := principalFrom(r.Context()); ok {
		if quantities, err = h.orders.ItemQuantities(r.Context(), p); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("restaurant")
		h.encodeRestaurant(e, m.Restaurant)
		e.FieldStart("items")
		h.encodeMenuItems(e, m.Items)
		if quantities != nil {
			e.FieldStart("cart_quantities")
			e.ObjStart()
			for id, q := range quantities {
				e.FieldStart(formatID(id))
				e.Int(q)
			}
			e.ObjEnd()
		}
	})
}
