package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/identity/internal/platform/auth"
)

// maxBatch bounds a single $match-batch request.
const maxBatch = 5000

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Intake endpoints – admin, intake
	intake := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleIntake))
	intake.POST("/patients/$match", h.MatchPatient)
	intake.POST("/patients/$match-batch", h.MatchBatch)
	intake.GET("/patients/:id", h.GetPatient)

	// Registration – admin only
	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/patients", h.CreatePatient)
}

type matchResponse struct {
	Matched bool        `json:"matched"`
	Patient *PatientRef `json:"patient,omitempty"`
}

func (h *Handler) MatchPatient(c echo.Context) error {
	var ids Identifiers
	if err := c.Bind(&ids); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref, err := h.svc.MatchPatient(c.Request().Context(), ids)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, matchResponse{Matched: ref != nil, Patient: ref})
}

type batchRequest struct {
	Items []Identifiers `json:"items"`
}

type batchResponse struct {
	Results []*PatientRef `json:"results"`
	Matched int           `json:"matched"`
}

func (h *Handler) MatchBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items is required")
	}
	if len(req.Items) > maxBatch {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too many items")
	}
	results, err := h.svc.ResolveBatch(c.Request().Context(), req.Items)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	matched := 0
	for _, r := range results {
		if r != nil {
			matched++
		}
	}
	return c.JSON(http.StatusOK, batchResponse{Results: results, Matched: matched})
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		if errors.Is(err, ErrNoIdentifiers) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
