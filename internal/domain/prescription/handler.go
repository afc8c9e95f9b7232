package prescription

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

// ReadRoles may view prescriptions. Admins are always allowed.
var ReadRoles = []string{auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(ReadRoles...))
	read.GET("/prescriptions", h.List)
	read.GET("/prescriptions/:id", h.Get)
	read.GET("/patients/:id/prescriptions", h.PatientHistory)

	// Doctors and admins only
	write := api.Group("", auth.RequireRole(auth.RoleDoctor))
	write.POST("/prescriptions", h.Create)
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(apperr.FieldError{Field: name, Message: "must be a valid UUID"})
	}
	return &id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	rx, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.InvalidRequest("invalid prescription id")
	}
	var expand []string
	if raw := c.QueryParam("expand"); raw != "" {
		expand = strings.Split(raw, ",")
	}
	view, err := h.svc.Get(c.Request().Context(), id, expand)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) List(c echo.Context) error {
	var f Filter
	var err error
	if f.PatientID, err = queryUUID(c, "patientId"); err != nil {
		return err
	}
	if f.DoctorID, err = queryUUID(c, "doctorId"); err != nil {
		return err
	}
	if f.AppointmentID, err = queryUUID(c, "appointmentId"); err != nil {
		return err
	}
	return h.list(c, f)
}

func (h *Handler) PatientHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.InvalidRequest("invalid patient id")
	}
	return h.list(c, Filter{PatientID: &id})
}

func (h *Handler) list(c echo.Context, f Filter) error {
	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
