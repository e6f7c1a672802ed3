package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// ErrInvalidSort is returned for an unknown sort field or direction.
var ErrInvalidSort = errors.New("invalid session sort")

// ListQuery selects a page of active sessions. Sort is "field:asc" or
// "field:desc" and defaults to "createdAt:desc".
type ListQuery struct {
	Search   string
	Role     string
	Sort     string
	Page     int
	PageSize int
}

// Summary is the listing view of one session.
type Summary struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Role             string    `json:"role"`
	UsernameDisplay  string    `json:"usernameToDisplay"`
	Email            string    `json:"email"`
	IP               string    `json:"ip"`
	IsLogged         bool      `json:"isLogged"`
	IsCurrentSession bool      `json:"isCurrentSession"`
	CreatedAt        time.Time `json:"createdAt"`
	LastTouchedAt    time.Time `json:"lastTouchedAt"`
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	CurrentPage     int  `json:"currentPage"`
	NextPage        *int `json:"nextPage"`
	PreviousPage    *int `json:"previousPage"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page is one page of session summaries.
type Page struct {
	Sessions   []Summary  `json:"sessions"`
	Pagination Pagination `json:"pagination"`
}

type sortKey func(a, b *Session) int

var sortFields = map[string]sortKey{
	"createdAt":     func(a, b *Session) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"lastTouchedAt": func(a, b *Session) int { return a.LastTouchedAt.Compare(b.LastTouchedAt) },
	"role":          func(a, b *Session) int { return strings.Compare(a.Role, b.Role) },
	"email":         func(a, b *Session) int { return strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email)) },
	"username":      func(a, b *Session) int { return strings.Compare(strings.ToLower(a.UsernameDisplay), strings.ToLower(b.UsernameDisplay)) },
	"userId":        func(a, b *Session) int { return strings.Compare(a.UserID, b.UserID) },
}

func parseSort(raw string) (sortKey, bool, error) {
	if raw == "" {
		raw = "createdAt:desc"
	}
	field, dir, found := strings.Cut(raw, ":")
	if !found {
		dir = "asc"
	}
	key, ok := sortFields[field]
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown field %q", ErrInvalidSort, field)
	}
	switch strings.ToLower(dir) {
	case "asc":
		return key, false, nil
	case "desc":
		return key, true, nil
	default:
		return nil, false, fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, dir)
	}
}

// ListActive scans every session under the prefix, keeps the logged-in ones
// that match the query, sorts them in memory and returns the requested page
// with the caller's own session marked. Cost is linear in the number of
// active sessions.
func (r *Registry) ListActive(ctx context.Context, currentSessionID string, q ListQuery) (Page, error) {
	key, desc, err := parseSort(q.Sort)
	if err != nil {
		return Page{}, err
	}

	all, err := r.scanAll(ctx)
	if err != nil {
		return Page{}, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]*Session, 0, len(all))
	for _, sess := range all {
		if !sess.IsLogged {
			continue
		}
		if q.Role != "" && sess.Role != q.Role {
			continue
		}
		if search != "" && !matchesSearch(sess, search) {
			continue
		}
		matched = append(matched, sess)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		c := key(matched[i], matched[j])
		if c == 0 {
			return matched[i].ID < matched[j].ID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	page, pageSize := normalizePage(q.Page, q.PageSize)
	meta := paginate(len(matched), page, pageSize)

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]Summary, 0, end-start)
	for _, sess := range matched[start:end] {
		out = append(out, Summary{
			ID:               sess.ID,
			UserID:           sess.UserID,
			Role:             sess.Role,
			UsernameDisplay:  sess.UsernameDisplay,
			Email:            sess.Email,
			IP:               sess.Fingerprint.IP,
			IsLogged:         sess.IsLogged,
			IsCurrentSession: sess.ID == currentSessionID,
			CreatedAt:        sess.CreatedAt,
			LastTouchedAt:    sess.LastTouchedAt,
		})
	}

	return Page{Sessions: out, Pagination: meta}, nil
}

func matchesSearch(sess *Session, needle string) bool {
	return strings.Contains(strings.ToLower(sess.UsernameDisplay), needle) ||
		strings.Contains(strings.ToLower(sess.Email), needle) ||
		strings.Contains(strings.ToLower(sess.UserID), needle)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func paginate(total, page, pageSize int) Pagination {
	totalPages := (total + pageSize - 1) / pageSize
	meta := Pagination{
		TotalItems:      total,
		TotalPages:      totalPages,
		CurrentPage:     page,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
	if meta.HasNextPage {
		next := page + 1
		meta.NextPage = &next
	}
	if meta.HasPreviousPage {
		prev := page - 1
		meta.PreviousPage = &prev
	}
	return meta
}

// scanAll walks the prefix with SCAN and loads each batch with one MGET.
// Keys that vanish or hold corrupt values between the two calls are skipped.
func (r *Registry) scanAll(ctx context.Context) ([]*Session, error) {
	pattern := r.cfg.Prefix + "*"
	seen := make(map[string]struct{})
	sessions := make([]*Session, 0)

	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, r.cfg.ScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		fresh := keys[:0]
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			fresh = append(fresh, k)
		}

		if len(fresh) > 0 {
			values, err := r.redis.MGet(ctx, fresh...).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				sess, err := Decode([]byte(raw))
				if err != nil {
					continue
				}
				sess.ID = strings.TrimPrefix(fresh[i], r.cfg.Prefix)
				sessions = append(sessions, sess)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}
