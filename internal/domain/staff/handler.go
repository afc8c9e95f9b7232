package staff

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public
	api.POST("/auth/login", h.Login)

	// Any authenticated staff member
	anyStaff := api.Group("", auth.RequireRole(auth.AllRoles...))
	anyStaff.GET("/auth/me", h.Me)
	anyStaff.PUT("/auth/password", h.ChangePassword)
	anyStaff.GET("/doctors", h.ListDoctors)
	anyStaff.GET("/doctors/:id/working-hours", h.GetWorkingHours)
	anyStaff.GET("/doctors/:id/leaves", h.ListLeaves)
	anyStaff.GET("/staff/:id", h.GetUser)

	// Directory – admin, receptionist
	directory := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	directory.GET("/staff", h.ListUsers)

	// Account management – admin
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/staff", h.CreateUser)
	admin.PATCH("/staff/:id", h.UpdateUser)
	admin.POST("/staff/:id/deactivate", h.DeactivateUser)
	admin.POST("/staff/:id/activate", h.ActivateUser)

	// Schedule – the doctor themselves or an admin
	self := api.Group("", auth.RequireSelfOrRole("id", auth.RoleAdmin))
	self.PUT("/doctors/:id/working-hours", h.SetWorkingHours)
	self.POST("/doctors/:id/leaves", h.AddLeave)
	self.DELETE("/doctors/:id/leaves/:leaveId", h.DeleteLeave)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidRequest("invalid %s", name)
	}
	return id, nil
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var in ChangePasswordInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), in); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in CreateUserInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	u, err := h.svc.CreateUser(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), UserFilter{
		Role:       c.QueryParam("role"),
		ActiveOnly: c.QueryParam("active") == "true",
		Query:      c.QueryParam("q"),
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg))
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), UserFilter{
		Role:       auth.RoleDoctor,
		ActiveOnly: true,
		Query:      c.QueryParam("q"),
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg))
}

func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateUserInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	u, err := h.svc.UpdateUser(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeactivateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.DeactivateUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ActivateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.ActivateUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetWorkingHours(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	hours, err := h.svc.GetWorkingHours(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if hours == nil {
		hours = []*WorkingHours{}
	}
	return c.JSON(http.StatusOK, map[string]any{"doctorId": id, "shifts": hours})
}

func (h *Handler) SetWorkingHours(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in WorkingHoursInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	hours, err := h.svc.SetWorkingHours(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"doctorId": id, "shifts": hours})
}

func (h *Handler) ListLeaves(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	leaves, err := h.svc.ListLeaves(c.Request().Context(), id, c.QueryParam("from"))
	if err != nil {
		return err
	}
	if leaves == nil {
		leaves = []*Leave{}
	}
	return c.JSON(http.StatusOK, leaves)
}

func (h *Handler) AddLeave(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in LeaveInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	l, err := h.svc.AddLeave(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) DeleteLeave(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	leaveID, err := parseID(c, "leaveId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLeave(c.Request().Context(), id, leaveID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
