package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// decodeJSON decodes and validates a request body. The returned value is a
// ready-to-send error payload.
func decodeJSON(r *http.Request, dst any) any {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return "invalid request body"
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err.Error()
		}
		fields := make(map[string]string)
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				fields[e.Field()] = "field is required"
			case "max":
				fields[e.Field()] = "must be at most " + e.Param() + " characters"
			default:
				fields[e.Field()] = "validation failed on " + e.Tag()
			}
		}
		return fields
	}
	return nil
}

// pagination reads limit and offset, ignoring malformed values.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit

	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = min(v, maxPageLimit)
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
