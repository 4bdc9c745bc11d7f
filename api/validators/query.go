package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParsePagination reads page/pageSize query parameters and normalizes them.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	page, err := ParseQueryInt(r, "page", 1, 1, 1<<30)
	if err != nil {
		return pagination.Params{}, err
	}
	pageSize, err := ParseQueryInt(r, "pageSize", pagination.DefaultPageSize, 1, pagination.MaxPageSize)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, PageSize: pageSize}.Normalize(), nil
}

// ParseURLUUID parses a path parameter as a UUID.
func ParseURLUUID(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid identifier").WithDetails(map[string]any{"field": field})
	}
	return id, nil
}
