package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/iam-service/internal/api/dto"
	"github.com/spec-kit/iam-service/internal/service"
)

// RolesHandler exposes role and permission endpoints.
type RolesHandler struct {
	iam *service.IAMService
}

// NewRolesHandler constructs handler.
func NewRolesHandler(iam *service.IAMService) *RolesHandler {
	return &RolesHandler{iam: iam}
}

// List handles GET /roles.
func (h *RolesHandler) List(c *fiber.Ctx) error {
	params, err := listParams(c)
	if err != nil {
		return err
	}
	page, err := h.iam.ListRoles(params)
	if err != nil {
		return err
	}
	return c.JSON(dto.ListResponse[dto.RoleResponse]{
		Data:     dto.NewRoleResponses(page.Items),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// Get handles GET /roles/:id.
func (h *RolesHandler) Get(c *fiber.Ctx) error {
	role, err := h.iam.GetRole(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRoleResponse(role)})
}

// Create handles POST /roles.
func (h *RolesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	role, err := h.iam.CreateRole(commandContext(c), req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewRoleResponse(role)})
}

// Update handles PUT /roles/:id.
func (h *RolesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	role, err := h.iam.UpdateRole(commandContext(c), c.Params("id"), req.ToPatch())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRoleResponse(role)})
}

// Delete handles DELETE /roles/:id?cascade=true.
func (h *RolesHandler) Delete(c *fiber.Ctx) error {
	cascade := c.QueryBool("cascade", false)
	if err := h.iam.DeleteRole(commandContext(c), c.Params("id"), cascade); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AssignUsers handles POST /roles/:id/users.
func (h *RolesHandler) AssignUsers(c *fiber.Ctx) error {
	var req dto.AssignUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	role, err := h.iam.AssignRoleToUsers(commandContext(c), c.Params("id"), req.UserIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRoleResponse(role)})
}

// Permissions handles GET /permissions.
func (h *RolesHandler) Permissions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.NewPermissionResponses(h.iam.ListPermissions())})
}
