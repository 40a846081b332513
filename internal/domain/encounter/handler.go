package encounter

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shr/shr/internal/domain/feed"
	"github.com/shr/shr/internal/platform/access"
	"github.com/shr/shr/internal/platform/auth"
	"github.com/shr/shr/internal/platform/fhir"
	"github.com/shr/shr/pkg/pagination"
)

// EncounterSearchResponse is the page returned by both feeds.
type EncounterSearchResponse = pagination.FeedResponse[*Event]

type CreateResponse struct {
	EncounterID string `json:"encounterId"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole(access.RoleFacility, access.RoleProvider))
	write.POST("/patients/:healthId/encounters", h.CreateEncounter)

	read := api.Group("", auth.RequireRole(access.RoleFacility, access.RoleProvider, access.RolePatient, access.RoleSystemAdmin))
	read.GET("/patients/:healthId/encounters", h.PatientFeed)
	read.GET("/patients/:healthId/encounters/:encounterId", h.GetEncounter)

	catchment := api.Group("", auth.RequireRole(access.RoleFacility, access.RoleProvider, access.RoleSystemAdmin))
	catchment.GET("/catchments/:catchment/encounters", h.CatchmentFeed)
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		// the body limit reports an oversized stream as a ready-made 413
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "encounter bundle is required")
	}

	ctx := c.Request().Context()
	evt, err := h.svc.CreateEncounter(ctx, auth.IdentityFromContext(ctx), c.Param("healthId"), body)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			status := http.StatusUnprocessableEntity
			if rejected.Result.Transient() {
				status = http.StatusServiceUnavailable
			}
			return c.JSON(status, rejected.Result.OperationOutcome())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, CreateResponse{EncounterID: evt.ID})
}

func (h *Handler) GetEncounter(c echo.Context) error {
	ctx := c.Request().Context()
	evt, err := h.svc.GetEncounter(ctx, auth.IdentityFromContext(ctx), c.Param("healthId"), c.Param("encounterId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, evt)
}

func (h *Handler) PatientFeed(c echo.Context) error {
	params, err := pagination.FeedFromContext(c, time.Time{})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	page, err := h.svc.PatientFeed(ctx, auth.IdentityFromContext(ctx), c.Param("healthId"), params.UpdatedSince, params.LastMarker)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.response(c, params, page))
}

func (h *Handler) CatchmentFeed(c echo.Context) error {
	params, err := pagination.FeedFromContext(c, h.svc.DefaultCatchmentSince())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	page, err := h.svc.CatchmentFeed(ctx, auth.IdentityFromContext(ctx), c.Param("catchment"), params.UpdatedSince, params.LastMarker)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.response(c, params, page))
}

func (h *Handler) response(c echo.Context, params pagination.Feed, page feed.Page[*Event]) *EncounterSearchResponse {
	resp := pagination.NewFeedResponse(pagination.FeedURL(c, params.UpdatedSince, params.LastMarker), page.Entries)
	if page.Next != nil {
		resp.NextURL = pagination.FeedURL(c, page.Next.UpdatedSince, page.Next.LastMarker)
	}
	return resp
}

func httpError(err error) error {
	switch {
	case errors.Is(err, feed.ErrInvalidCatchment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusPreconditionFailed,
			fhir.NewOperationOutcome("error", "invalid", err.Error()))
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
