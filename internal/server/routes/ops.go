package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/services"
	"github.com/ryefield/souk/internal/db"
)

// OpsRoutes registers health and operational endpoints.
type OpsRoutes struct {
	database  *db.Database
	ingestion *services.Ingestion
}

// NewOpsRoutes constructs operational routes.
func NewOpsRoutes(database *db.Database, ingestion *services.Ingestion) *OpsRoutes {
	return &OpsRoutes{database: database, ingestion: ingestion}
}

// RegisterRoutes registers operational endpoints.
func (o *OpsRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/health", o.handleHealth)
	s.GET("/ops/tasks/dead", o.handleDeadTasks)
	s.POST("/ops/ingest/:source", o.handleIngestPass)
}

func (o *OpsRoutes) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (o *OpsRoutes) handleDeadTasks(c echo.Context) error {
	count, err := o.database.CountDeadTasks(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, map[string]int64{"dead": count})
}

func (o *OpsRoutes) handleIngestPass(c echo.Context) error {
	source, err := domain.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown source"})
	}

	recorded, err := o.ingestion.RunPass(c.Request().Context(), source)
	if err != nil {
		if errors.Is(err, services.ErrUnknownSource) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no connector for source"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "ingestion pass failed"})
	}
	return c.JSON(http.StatusOK, map[string]int{"recorded": recorded})
}
