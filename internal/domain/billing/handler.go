package billing

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
	// Cashier desk – receptionist, accountant, admin
	desk := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleAccountant))
	desk.POST("/payments", h.Create)
	desk.GET("/payments", h.List)
	desk.GET("/payments/summary", h.Summary)
	desk.GET("/payments/receipt/:receiptNumber", h.GetByReceipt)
	desk.GET("/payments/:id", h.Get)
	desk.GET("/patients/:id/payments", h.PatientHistory)

	accounts := api.Group("", auth.RequireRole(auth.RoleAccountant))
	accounts.POST("/payments/:id/complete", h.Complete)
	accounts.POST("/payments/:id/refund", h.Refund)
}

func parseID(c echo.Context, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidRequest("invalid %s id", what)
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	p, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "payment")
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetByReceipt(c echo.Context) error {
	v, err := h.svc.GetByReceipt(c.Request().Context(), c.Param("receiptNumber"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{
		Status: c.QueryParam("status"),
		Method: c.QueryParam("method"),
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
	}
	for name, dst := range map[string]**uuid.UUID{"patientId": &f.PatientID, "appointmentId": &f.AppointmentID} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Validation(apperr.FieldError{Field: name, Message: "must be a valid UUID"})
		}
		*dst = &id
	}
	return h.list(c, f)
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

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c, "payment")
	if err != nil {
		return err
	}
	p, err := h.svc.Complete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Refund(c echo.Context) error {
	id, err := parseID(c, "payment")
	if err != nil {
		return err
	}
	var in RefundInput
	if err := validation.Decode(c.Request().Body, &in); err != nil {
		return err
	}
	p, err := h.svc.Refund(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Summary takes ?from=&to=&currency=, all optional.
func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context(), c.QueryParam("from"), c.QueryParam("to"), c.QueryParam("currency"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}
