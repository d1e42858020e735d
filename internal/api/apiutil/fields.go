package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", field)
	}
	return value, nil
}

// PathID parses the {id} wildcard of the matched route.
func PathID(r *http.Request, field string) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue("id"), field)
}

// QueryBool reads a boolean query parameter. Absent or empty values give def.
func QueryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def, FieldError{Field: key, Reason: "must be true or false"}
	}
	return value, nil
}

// QueryLimit reads an optional positive limit parameter.
func QueryLimit(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: key, Reason: "must be a positive integer"}
	}
	return value, nil
}
