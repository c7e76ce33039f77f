package handler

import (
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/domain/menu"
)

// menuForm is a menu item submitted as multipart form or JSON. Nil fields
// were not submitted.
type menuForm struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	// CategoryID is zero when the category was submitted empty.
	CategoryID  *int64
	Available   *bool
	RemoveImage bool
	Image       *menu.Upload

	file multipart.File
}

func (f *menuForm) Close() {
	if f.file != nil {
		_ = f.file.Close()
	}
}

func (f *menuForm) newItem() menu.NewItem {
	in := menu.NewItem{Available: true, Image: f.Image}
	if f.Name != nil {
		in.Name = *f.Name
	}
	if f.Description != nil {
		in.Description = *f.Description
	}
	if f.Price != nil {
		in.Price = *f.Price
	}
	if f.CategoryID != nil && *f.CategoryID != 0 {
		in.CategoryID = f.CategoryID
	}
	if f.Available != nil {
		in.Available = *f.Available
	}
	return in
}

func (f *menuForm) patch() menu.Patch {
	p := menu.Patch{
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		Available:   f.Available,
		Image:       f.Image,
		RemoveImage: f.RemoveImage,
	}
	if f.CategoryID != nil {
		if *f.CategoryID == 0 {
			p.ClearCategory = true
		} else {
			p.CategoryID = f.CategoryID
		}
	}
	return p
}

func parsePrice(s string) (*decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, badRequest("price must be a decimal number")
	}
	return &d, nil
}

func parseCategory(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		var zero int64
		return &zero, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return nil, badRequest("category_id must be an integer")
	}
	return &id, nil
}

// decodeMenuForm reads a multipart form or a JSON body depending on the
// request content type.
func (h *Handler) decodeMenuForm(w http.ResponseWriter, r *http.Request) (*menuForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.decodeMultipartMenu(w, r)
	}
	return decodeJSONMenu(w, r)
}

func (h *Handler) decodeMultipartMenu(w http.ResponseWriter, r *http.Request) (*menuForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, badRequest("invalid multipart form: " + err.Error())
	}

	f := &menuForm{}
	values := r.MultipartForm.Value
	value := func(key string) (string, bool) {
		v, ok := values[key]
		if !ok || len(v) == 0 {
			return "", false
		}
		return v[0], true
	}

	if v, ok := value("name"); ok {
		f.Name = &v
	}
	if v, ok := value("description"); ok {
		f.Description = &v
	}
	if v, ok := value("price"); ok {
		p, err := parsePrice(v)
		if err != nil {
			return nil, err
		}
		f.Price = p
	}
	if v, ok := value("category_id"); ok {
		c, err := parseCategory(v)
		if err != nil {
			return nil, err
		}
		f.CategoryID = c
	}
	if v, ok := value("available"); ok {
		b, err := parseBool("available", v)
		if err != nil {
			return nil, err
		}
		f.Available = &b
	}
	if v, ok := value("remove_image"); ok {
		b, err := parseBool("remove_image", v)
		if err != nil {
			return nil, err
		}
		f.RemoveImage = b
	}

	file, hdr, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return nil, badRequest("invalid image: " + err.Error())
	default:
		f.file = file
		f.Image = &menu.Upload{Filename: hdr.Filename, Body: file}
	}
	return f, nil
}

func decodeJSONMenu(w http.ResponseWriter, r *http.Request) (*menuForm, error) {
	f := &menuForm{}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			f.Name = &v
			return err
		case "description":
			v, err := d.Str()
			f.Description = &v
			return err
		case "price":
			var raw string
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				raw = v
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return err
				}
				raw = n.String()
			default:
				return badRequest("price must be a decimal number")
			}
			p, err := parsePrice(raw)
			f.Price = p
			return err
		case "category_id":
			if d.Next() == jx.Null {
				var zero int64
				f.CategoryID = &zero
				return d.Null()
			}
			id, err := decodeID(d, key)
			f.CategoryID = &id
			return err
		case "available":
			v, err := decodeBool(d, key)
			f.Available = &v
			return err
		case "remove_image":
			v, err := decodeBool(d, key)
			f.RemoveImage = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (h *Handler) writeMenuItem(w http.ResponseWriter, item *catalog.MenuItem) {
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("item")
		h.encodeMenuItem(e, item)
	})
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	items, err := h.menu.List(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("items")
		h.encodeMenuItems(e, items)
	})
}

func (h *Handler) getMenuItem(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.menu.Get(r.Context(), p, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeMenuItem(w, item)
}

func (h *Handler) addMenuItem(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	// Check the role before reading a potentially large upload.
	if _, err := p.Kitchen(); err != nil {
		h.writeError(w, r, err)
		return
	}
	form, err := h.decodeMenuForm(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.Close()

	item, err := h.menu.Add(r.Context(), p, form.newItem())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeMenuItem(w, item)
}

func (h *Handler) editMenuItem(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := p.Kitchen(); err != nil {
		h.writeError(w, r, err)
		return
	}
	form, err := h.decodeMenuForm(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.Close()

	item, err := h.menu.Edit(r.Context(), p, id, form.patch())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeMenuItem(w, item)
}

func (h *Handler) deleteMenuItem(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.menu.Delete(r.Context(), p, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, nil)
}
