package shared

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ListQuery holds the paging window and raw filters of a list request.
type ListQuery struct {
	Limit  int
	Offset int
	values url.Values
}

// ParseListQuery reads limit and offset, clamping limit to maxLimit. Values
// that are not numbers in range are reported on v.
func ParseListQuery(r *http.Request, v *Validator, defaultLimit, maxLimit int) ListQuery {
	q := ListQuery{Limit: defaultLimit, values: r.URL.Query()}
	if raw := q.String("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		v.Check(err == nil && n > 0, "limit", "must be a positive integer")
		if err == nil && n > 0 {
			q.Limit = n
		}
	}
	if raw := q.String("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		v.Check(err == nil && n >= 0, "offset", "must be a non-negative integer")
		if err == nil && n >= 0 {
			q.Offset = n
		}
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q
}

func (q ListQuery) String(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

// Flag is true only for an explicit "true".
func (q ListQuery) Flag(name string) bool {
	return strings.EqualFold(q.String(name), "true")
}

// Bool returns nil when name is absent so callers can tell "unset" from false.
func (q ListQuery) Bool(v *Validator, name string) *bool {
	raw := q.String(name)
	if raw == "" {
		return nil
	}
	flag, err := strconv.ParseBool(raw)
	if err != nil {
		v.Add(name, "must be true or false")
		return nil
	}
	return &flag
}
