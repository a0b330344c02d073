package query

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/store"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

// Params selects one page of a collection. Page is 1-indexed.
type Params struct {
	Page     int
	PageSize int
	Search   string
}

// Page is the visible window of a collection. Total counts every match
// before slicing; Revision is the store revision the page was computed at.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	Revision uint64
}

// Engine computes pages straight from the store on every call; it keeps no
// filtered view between calls, so totals always reflect the last settled command.
type Engine struct {
	store *store.Store
}

// NewEngine builds an engine over the given store.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Users matches username, email, first and last name.
func (e *Engine) Users(p Params) (Page[domain.User], error) {
	if err := p.validate(); err != nil {
		return Page[domain.User]{}, err
	}
	users, rev := e.store.ListUsers()
	page := paginate(users, p, func(m matcher, u domain.User) bool {
		return m.any(u.Username, u.Email, u.FirstName, u.LastName)
	})
	page.Revision = rev
	return page, nil
}

// Roles matches name and description.
func (e *Engine) Roles(p Params) (Page[domain.Role], error) {
	if err := p.validate(); err != nil {
		return Page[domain.Role]{}, err
	}
	roles, rev := e.store.ListRoles()
	page := paginate(roles, p, func(m matcher, r domain.Role) bool {
		desc := ""
		if r.Description != nil {
			desc = *r.Description
		}
		return m.any(r.Name, desc)
	})
	page.Revision = rev
	return page, nil
}

func (p Params) validate() error {
	if p.Page < 1 {
		return apperrors.NewValidationError("page must be >= 1", map[string]any{"page": p.Page})
	}
	if p.PageSize < 1 {
		return apperrors.NewValidationError("pageSize must be > 0", map[string]any{"pageSize": p.PageSize})
	}
	return nil
}

func paginate[T any](items []T, p Params, match func(matcher, T) bool) Page[T] {
	m := newMatcher(p.Search)
	matched := items
	if !m.empty() {
		matched = make([]T, 0, len(items))
		for _, item := range items {
			if match(m, item) {
				matched = append(matched, item)
			}
		}
	}

	page := Page[T]{Items: []T{}, Total: len(matched), Page: p.Page, PageSize: p.PageSize}
	start := (p.Page - 1) * p.PageSize
	if start >= len(matched) || start < 0 {
		return page
	}
	end := start + p.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = append(page.Items, matched[start:end]...)
	return page
}

// matcher does case-insensitive substring matching using Unicode case folding.
type matcher struct {
	caser  cases.Caser
	needle string
}

// newMatcher matches the search text as given. Text made only of whitespace
// filters nothing.
func newMatcher(search string) matcher {
	c := cases.Fold()
	if strings.TrimSpace(search) == "" {
		return matcher{caser: c}
	}
	return matcher{caser: c, needle: c.String(search)}
}

func (m matcher) empty() bool {
	return m.needle == ""
}

func (m matcher) any(fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(m.caser.String(f), m.needle) {
			return true
		}
	}
	return false
}
