package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/iam-service/internal/api/dto"
	"github.com/spec-kit/iam-service/internal/service"
)

// UsersHandler exposes user administration endpoints.
type UsersHandler struct {
	iam *service.IAMService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(iam *service.IAMService) *UsersHandler {
	return &UsersHandler{iam: iam}
}

// List handles GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	params, err := listParams(c)
	if err != nil {
		return err
	}
	page, err := h.iam.ListUsers(params)
	if err != nil {
		return err
	}
	return c.JSON(dto.ListResponse[dto.UserResponse]{
		Data:     dto.NewUserResponses(page.Items),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// Get handles GET /users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.iam.GetUser(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Create handles POST /users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	user, err := h.iam.CreateUser(commandContext(c), req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Update handles PUT /users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	user, err := h.iam.UpdateUser(commandContext(c), c.Params("id"), req.ToPatch())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Delete handles DELETE /users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	if err := h.iam.DeleteUser(commandContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AssignRoles handles POST /users/:id/roles.
func (h *UsersHandler) AssignRoles(c *fiber.Ctx) error {
	var req dto.AssignRolesRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	user, err := h.iam.AssignRolesToUser(commandContext(c), c.Params("id"), req.RoleIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}
