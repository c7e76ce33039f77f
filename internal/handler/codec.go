package handler

import (
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
)

// maxJSONBody limits JSON request bodies.
const maxJSONBody = 64 << 10

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeSuccess writes {"success":true} followed by the fields added by fn.
func writeSuccess(w http.ResponseWriter, fn func(e *jx.Encoder)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(true)
		if fn != nil {
			fn(e)
		}
		e.ObjEnd()
	})
}

// decodeBody reads a JSON object and hands every field to fn. An empty body
// decodes as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body too large")
		}
		return errors.Wrap(err, "read body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		var badReq *badRequestError
		if errors.As(err, &badReq) {
			return err
		}
		return badRequest("malformed JSON body: " + err.Error())
	}
	return nil
}

// decodeID accepts an identifier encoded as a JSON number or string.
func decodeID(d *jx.Decoder, field string) (int64, error) {
	switch d.Next() {
	case jx.Number:
		return d.Int64()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, badRequest(field + " must be an integer")
		}
		return id, nil
	default:
		return 0, badRequest(field + " must be an integer")
	}
}

func decodeBool(d *jx.Decoder, field string) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return false, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return false, err
		}
		return parseBool(field, s)
	default:
		return false, badRequest(field + " must be a boolean")
	}
}

// parseBool accepts HTML checkbox values as well as strconv booleans. An
// empty value is false.
func parseBool(field, s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, badRequest(field + " must be a boolean")
	}
	return b, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id " + strconv.Quote(r.PathValue("id")))
	}
	return id, nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func (h *Handler) imageURL(key string) string {
	if key == "" {
		return ""
	}
	return h.assets.URL(key)
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("customer_id")
	e.Int64(o.CustomerID)
	e.FieldStart("restaurant")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.RestaurantID)
	e.FieldStart("name")
	e.Str(o.RestaurantName)
	e.ObjEnd()
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("quantity")
	e.Int(o.Quantity())
	e.FieldStart("total_price")
	encodeMoney(e, o.Total)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeLine(e, it)
	}
	e.ArrEnd()
	if c := o.Cancellation; c != nil {
		e.FieldStart("cancellation")
		e.ObjStart()
		e.FieldStart("reason")
		e.Str(string(c.Reason))
		e.FieldStart("notes")
		e.Str(c.Notes)
		e.FieldStart("created_at")
		encodeTime(e, c.CreatedAt)
		e.ObjEnd()
	}
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, it order.Item) {
	e.ObjStart()
	e.FieldStart("item_id")
	e.Int64(it.MenuItemID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("unit_price")
	encodeMoney(e, it.UnitPrice)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("line_total")
	encodeMoney(e, it.LineTotal())
	e.FieldStart("instructions")
	e.Str(it.Instructions)
	e.ObjEnd()
}

func (h *Handler) encodeOrders(e *jx.Encoder, list []order.Order) {
	e.ArrStart()
	for i := range list {
		h.encodeOrder(e, &list[i])
	}
	e.ArrEnd()
}

func (h *Handler) encodeRestaurant(e *jx.Encoder, r *catalog.Restaurant) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(r.ID)
	e.FieldStart("name")
	e.Str(r.Name)
	e.FieldStart("address")
	e.Str(r.Address)
	e.FieldStart("cuisine")
	e.Str(r.Cuisine)
	e.FieldStart("rating")
	e.Str(r.Rating.StringFixed(1))
	e.FieldStart("opening")
	e.Str(r.Opening)
	e.FieldStart("closing")
	e.Str(r.Closing)
	if r.Chain != nil {
		e.FieldStart("chain")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(r.Chain.ID)
		e.FieldStart("name")
		e.Str(r.Chain.Name)
		e.ObjEnd()
	}
	if url := h.imageURL(r.ImageKey); url != "" {
		e.FieldStart("image_url")
		e.Str(url)
	}
	e.ObjEnd()
}

func (h *Handler) encodeMenuItem(e *jx.Encoder, it *catalog.MenuItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(it.ID)
	e.FieldStart("restaurant_id")
	e.Int64(it.RestaurantID)
	if it.CategoryID != nil {
		e.FieldStart("category_id")
		e.Int64(*it.CategoryID)
	}
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("description")
	e.Str(it.Description)
	e.FieldStart("price")
	encodeMoney(e, it.Price)
	e.FieldStart("available")
	e.Bool(it.Available)
	if url := h.imageURL(it.ImageKey); url != "" {
		e.FieldStart("image_url")
		e.Str(url)
	}
	e.ObjEnd()
}

func (h *Handler) encodeMenuItems(e *jx.Encoder, items []catalog.MenuItem) {
	e.ArrStart()
	for i := range items {
		h.encodeMenuItem(e, &items[i])
	}
	e.ArrEnd()
}

func encodeUser(e *jx.Encoder, u *auth.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("is_kitchen")
	e.Bool(u.IsKitchen)
	if u.ManagedRestaurantID != nil {
		e.FieldStart("managed_restaurant_id")
		e.Int64(*u.ManagedRestaurantID)
	}
	e.ObjEnd()
}
