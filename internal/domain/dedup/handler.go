package dedup

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/identity/internal/platform/auth"
	"github.com/clinicops/identity/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/duplicates", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.Preview)
	admin.GET("/export", h.Export)
	admin.GET("/registry", h.Registry)
	admin.POST("/merge", h.Merge)
}

// reportPage is a Report whose clusters are paginated.
type reportPage struct {
	*Report
	Clusters *pagination.Response `json:"clusters"`
}

func page(c echo.Context, r *Report) reportPage {
	pg := pagination.FromContext(c)
	start, end := pg.Bounds(len(r.Clusters))
	return reportPage{
		Report:   r,
		Clusters: pagination.NewResponse(r.Clusters[start:end], len(r.Clusters), pg.Limit, pg.Offset),
	}
}

func (h *Handler) Preview(c echo.Context) error {
	report, err := h.svc.Preview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, page(c, report))
}

type mergeRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) Merge(c echo.Context) error {
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Confirm {
		return echo.NewHTTPError(http.StatusBadRequest, "confirm must be true to merge duplicates")
	}

	report, err := h.svc.Run(c.Request().Context(), ModeCommit)
	switch {
	case errors.Is(err, ErrRunInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil && report == nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// A cancelled run still carries a partial report.
	return c.JSON(http.StatusOK, page(c, report))
}

func (h *Handler) Export(c echo.Context) error {
	report, err := h.svc.Preview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, report); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("duplicate-patients-%s.xlsx", report.StartedAt.Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func (h *Handler) Registry(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Registry())
}
