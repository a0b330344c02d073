package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/query"
	"github.com/spec-kit/iam-service/internal/service"
	apperrors "github.com/spec-kit/iam-service/pkg/util/errorutil"
)

// listParams reads page, pageSize and search. Absent values are left zero
// so the service applies its defaults.
func listParams(c *fiber.Ctx) (query.Params, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return query.Params{}, err
	}
	size, err := queryInt(c, "pageSize")
	if err != nil {
		return query.Params{}, err
	}
	return query.Params{Page: page, PageSize: size, Search: c.Query("search")}, nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apperrors.NewValidationError("invalid "+key, map[string]any{key: raw})
	}
	return v, nil
}

func invalidPayload() error {
	return apperrors.NewValidationError("invalid payload", nil)
}

// commandContext carries the authenticated operator into the command.
func commandContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if p, ok := auth.PrincipalFromContext(c); ok {
		ctx = service.WithActor(ctx, p.Subject)
	}
	return ctx
}
