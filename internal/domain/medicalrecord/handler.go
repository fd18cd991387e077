package medicalrecord

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/actor"
	"github.com/carevault/carevault/internal/platform/gate"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the record endpoints. Every route sits behind the
// access gate: the gate decides the request, records the audit event, and
// only then does control reach these handlers.
func (h *Handler) RegisterRoutes(api *echo.Group, g *gate.Gate) {
	guarded := gate.Middleware(g, "id")
	prof := actor.RequireKind(actor.KindProfessional)

	api.GET("/patients/:id/record", h.ListEntries, guarded)
	api.GET("/patients/:id/record/:entry_id", h.GetEntry, guarded)
	api.POST("/patients/:id/record", h.AddEntry, prof, guarded)
}

func (h *Handler) ListEntries(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.ListEntries(c.Request().Context(), patientID, c.QueryParam("category"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetEntry(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entryID, err := uuid.Parse(c.Param("entry_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}

	e, err := h.svc.GetEntry(c.Request().Context(), patientID, entryID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

type addEntryInput struct {
	Category   string     `json:"category"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func (h *Handler) AddEntry(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var in addEntryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var recordedAt time.Time
	if in.RecordedAt != nil {
		recordedAt = *in.RecordedAt
	}

	e, err := h.svc.AddEntry(c.Request().Context(), patientID, act, in.Category, in.Title, in.Body, recordedAt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record entry not found")
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record entry")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
