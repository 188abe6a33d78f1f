package events

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
)

// Filters narrows the upcoming and past listings.
type Filters struct {
	Search   string
	Category string
}

// ParseFilters reads the `search` and `category` query parameters.
func ParseFilters(values url.Values) Filters {
	return Filters{
		Search:   strings.TrimSpace(values.Get("search")),
		Category: strings.TrimSpace(values.Get("category")),
	}.normalized()
}

func (f Filters) normalized() Filters {
	f.Search = strings.TrimSpace(f.Search)
	f.Category = strings.TrimSpace(f.Category)
	if strings.EqualFold(f.Category, AllCategories) {
		f.Category = ""
	}
	return f
}

// ParseCapacity reads the capacity form field. Empty means unlimited.
func ParseCapacity(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperr.NewValidationError("capacity", "Capacity must be a whole number")
	}
	return &n, nil
}

// ParseID reads a positive integer identifier from a path segment.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}
