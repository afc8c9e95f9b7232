package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

// ReadRoles may look patients up. Admins are always allowed.
var ReadRoles = []string{auth.RoleReceptionist, auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist, auth.RoleAccountant}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(ReadRoles...))
	readGroup.GET("/patients", h.List)
	readGroup.GET("/patients/:id", h.Get)

	// Registration desk – receptionist, admin
	writeGroup := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	writeGroup.POST("/patients", h.Register)
	writeGroup.PATCH("/patients/:id", h.Update)
	writeGroup.POST("/patients/:id/deactivate", h.Deactivate)
	writeGroup.POST("/patients/:id/reactivate", h.Reactivate)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidRequest("invalid patient id")
	}
	return id, nil
}

func (h *Handler) Register(c echo.Context) error {
	var in CreatePatientInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	p, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// Get accepts either the patient's UUID or its patient code.
func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.List(c.Request().Context(), Filter{
		Query:      c.QueryParam("q"),
		ActiveOnly: c.QueryParam("includeInactive") != "true",
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdatePatientInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	p, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Deactivate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Reactivate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Reactivate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
