package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/domain/menu"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
	"github.com/Kiongsoh/CS50W/internal/storage/media"
	"github.com/Kiongsoh/CS50W/pkg/httpmiddleware"
)

// Error kinds of the response envelope.
const (
	kindNotFound       = "not_found"
	kindConflict       = "different_restaurant"
	kindInvalidState   = "invalid_state"
	kindUnauthorized   = "unauthorized"
	kindAuthRequired   = "authentication_required"
	kindBadCredentials = "invalid_credentials"
	kindBadRequest     = "bad_request"
	kindUnavailable    = "unavailable"
	kindInternal       = "internal"
)

// badRequestError marks malformed request input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// writeError maps a domain error to its status and kind. Unknown errors are
// logged and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict     *order.RestaurantConflictError
		invalidState *order.InvalidStateError
		invalidField *menu.InvalidFieldError
		badReq       *badRequestError
		validation   validator.ValidationErrors
	)
	switch {
	case errors.As(err, &conflict):
		writeConflict(w, conflict)
	case errors.As(err, &invalidState), errors.Is(err, order.ErrEmptyCart):
		httpmiddleware.WriteError(w, http.StatusConflict, kindInvalidState, rootMessage(err))
	case errors.Is(err, order.ErrItemUnavailable):
		httpmiddleware.WriteError(w, http.StatusConflict, kindUnavailable, order.ErrItemUnavailable.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrLineNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, kindNotFound, rootMessage(err))
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrNoManagedRestaurant):
		httpmiddleware.WriteError(w, http.StatusForbidden, kindUnauthorized, rootMessage(err))
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, kindBadCredentials, auth.ErrInvalidCredentials.Error())
	case errors.As(err, &validation):
		httpmiddleware.WriteError(w, http.StatusBadRequest, kindBadRequest, validationMessage(validation))
	case errors.As(err, &invalidField), errors.As(err, &badReq),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, media.ErrUnsupportedType),
		errors.Is(err, order.ErrUnknownAction),
		errors.Is(err, order.ErrInvalidReason):
		httpmiddleware.WriteError(w, http.StatusBadRequest, kindBadRequest, rootMessage(err))
	default:
		ctx := r.Context()
		zctx.From(ctx).Error("Request failed",
			zap.String("pattern", r.Pattern),
			zap.Error(err),
		)
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		httpmiddleware.WriteError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

// rootMessage strips the wrapping context added on the way up so clients see
// only the domain message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func writeConflict(w http.ResponseWriter, err *order.RestaurantConflictError) {
	writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(false)
		e.FieldStart("error")
		e.Str(kindConflict)
		e.FieldStart("message")
		e.Str(err.Error())
		e.FieldStart("current_restaurant")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(err.CurrentRestaurantID)
		e.FieldStart("name")
		e.Str(err.CurrentRestaurantName)
		e.ObjEnd()
		e.FieldStart("requested_restaurant_id")
		e.Int64(err.RequestedRestaurantID)
		e.ObjEnd()
	})
}

func writeAuthRequired(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(false)
		e.FieldStart("error")
		e.Str(kindAuthRequired)
		e.FieldStart("message")
		e.Str("please log in")
		e.FieldStart("login_url")
		e.Str(loginURL)
		e.ObjEnd()
	})
}
