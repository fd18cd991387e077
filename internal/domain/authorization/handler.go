package authorization

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/actor"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	prof := actor.RequireKind(actor.KindProfessional)
	pat := actor.RequireKind(actor.KindPatient)
	patOrSys := actor.RequireKind(actor.KindPatient, actor.KindSystem)
	profOrSys := actor.RequireKind(actor.KindProfessional, actor.KindSystem)

	api.POST("/authorizations", h.RequestAccess, prof)
	api.POST("/authorizations/emergency", h.GrantEmergencyAccess, prof)
	api.POST("/authorizations/secret", h.GrantSecretAccess, prof)
	api.POST("/authorizations/:id/response", h.RespondToRequest, pat)
	api.POST("/authorizations/:id/revoke", h.RevokeAuthorization)
	api.POST("/authorizations/:id/token", h.IssueToken, profOrSys)
	api.GET("/authorizations/:id", h.GetAuthorization)

	api.GET("/patients/:id/authorizations/pending", h.ListPendingForPatient, patOrSys)
	api.GET("/patients/:id/authorizations/active", h.ListActiveForPatient, patOrSys)
	api.GET("/professionals/:id/authorizations/active", h.ListActiveForProfessional, profOrSys)
}

type requestAccessInput struct {
	PatientID uuid.UUID `json:"patient_id"`
	Reason    string    `json:"reason"`
}

func (h *Handler) RequestAccess(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	var in requestAccessInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.RequestAccess(c.Request().Context(), act.ID, in.PatientID, in.Reason, metaFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type respondInput struct {
	Decision Decision `json:"decision"`
	Comment  string   `json:"comment"`
}

type respondOutput struct {
	Authorization *Authorization   `json:"authorization"`
	Credential    *GrantCredential `json:"credential,omitempty"`
}

func (h *Handler) RespondToRequest(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var in respondInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, cred, err := h.svc.RespondToRequest(c.Request().Context(), id, act.ID, in.Decision, in.Comment, metaFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, respondOutput{Authorization: a, Credential: cred})
}

type revokeInput struct {
	Reason string `json:"reason"`
}

func (h *Handler) RevokeAuthorization(c echo.Context) error {
	act, ok := actor.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var in revokeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.RevokeAuthorization(c.Request().Context(), id, act, in.Reason, metaFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type overrideInput struct {
	PatientID     uuid.UUID `json:"patient_id"`
	Justification string    `json:"justification"`
	Reason        string    `json:"reason"`
}

func (h *Handler) GrantEmergencyAccess(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	var in overrideInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.GrantEmergencyAccess(c.Request().Context(), act.ID, in.PatientID, in.Justification, metaFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GrantSecretAccess(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	var in overrideInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.GrantSecretAccess(c.Request().Context(), act.ID, in.PatientID, in.Reason, metaFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) IssueToken(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	cred, err := h.svc.IssueToken(c.Request().Context(), id, act, metaFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cred)
}

func (h *Handler) GetAuthorization(c echo.Context) error {
	act, ok := actor.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	a, err := h.svc.GetAuthorization(c.Request().Context(), id, act)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListPendingForPatient(c echo.Context) error {
	patientID, err := h.ownPatientID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPendingForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListActiveForPatient(c echo.Context) error {
	patientID, err := h.ownPatientID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListActiveForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListActiveForProfessional(c echo.Context) error {
	act, _ := actor.FromContext(c.Request().Context())

	professionalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if act.Kind == actor.KindProfessional && act.ID != professionalID {
		return echo.NewHTTPError(http.StatusForbidden, "insufficient privileges")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListActiveForProfessional(c.Request().Context(), professionalID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ownPatientID parses the patient id path parameter and, for patient actors,
// enforces that it is their own.
func (h *Handler) ownPatientID(c echo.Context) (uuid.UUID, error) {
	act, _ := actor.FromContext(c.Request().Context())

	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if act.Kind == actor.KindPatient && act.ID != patientID {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "insufficient privileges")
	}
	return patientID, nil
}

func metaFrom(c echo.Context) Meta {
	return Meta{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// httpError maps the package error taxonomy onto distinct HTTP statuses so
// callers can render distinct messages.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "authorization not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "an authorization already exists for this patient")
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "authorization state does not permit this operation")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "operation not permitted")
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
