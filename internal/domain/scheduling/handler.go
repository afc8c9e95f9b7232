package scheduling

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

// FrontDeskRoles may book and manage appointments. Admins are always allowed.
var FrontDeskRoles = []string{auth.RoleReceptionist, auth.RoleDoctor, auth.RoleNurse}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(patient.ReadRoles...))
	read.GET("/appointments", h.List)
	read.GET("/appointments/:id", h.Get)
	read.GET("/patients/:id/appointments", h.PatientHistory)
	read.GET("/doctors/:id/queue", h.Queue)
	read.GET("/doctors/:id/slots", h.Slots)

	desk := api.Group("", auth.RequireRole(FrontDeskRoles...))
	desk.POST("/appointments", h.Book)
	desk.PATCH("/appointments/:id", h.Update)
	desk.POST("/appointments/:id/confirm", h.Confirm)
	desk.POST("/appointments/:id/complete", h.Complete)
	desk.POST("/appointments/:id/cancel", h.Cancel)
}

func parseID(c echo.Context, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidRequest("invalid %s id", what)
	}
	return id, nil
}

func optionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
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

func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := validation.Decode(c.Request().Body, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

// Get supports ?expand=patient,doctor.
func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
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
	patientID, err := optionalUUID(c, "patientId")
	if err != nil {
		return err
	}
	doctorID, err := optionalUUID(c, "doctorId")
	if err != nil {
		return err
	}
	return h.list(c, Filter{
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    c.QueryParam("status"),
		From:      c.QueryParam("from"),
		To:        c.QueryParam("to"),
	})
}

func (h *Handler) PatientHistory(c echo.Context) error {
	id, err := parseID(c, "patient")
	if err != nil {
		return err
	}
	return h.list(c, Filter{PatientID: &id, Status: c.QueryParam("status")})
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

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
	}
	var in UpdateAppointmentInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
	}
	a, err := h.svc.Confirm(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// Complete takes an optional body {"notes": "..."}.
func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
	}
	var in struct {
		Notes *string `json:"notes"`
	}
	if c.Request().ContentLength != 0 {
		if err := validation.Decode(c.Request().Body, &in); err != nil {
			return err
		}
	}
	a, err := h.svc.Complete(c.Request().Context(), id, in.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c, "appointment")
	if err != nil {
		return err
	}
	var in CancelInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Queue(c echo.Context) error {
	id, err := parseID(c, "doctor")
	if err != nil {
		return err
	}
	items, err := h.svc.Queue(c.Request().Context(), id, c.QueryParam("date"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Slots(c echo.Context) error {
	id, err := parseID(c, "doctor")
	if err != nil {
		return err
	}
	slots, err := h.svc.Slots(c.Request().Context(), id, c.QueryParam("date"))
	if err != nil {
		return err
	}
	if slots == nil {
		slots = []Slot{}
	}
	return c.JSON(http.StatusOK, slots)
}
