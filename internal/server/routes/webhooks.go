package routes

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ryefield/souk/internal/app/services"
	"github.com/ryefield/souk/internal/channels/widget"
)

// WebhookRoutes registers channel webhook endpoints.
type WebhookRoutes struct {
	widget *widget.Channel
}

// NewWebhookRoutes constructs webhook routes over the widget channel.
func NewWebhookRoutes(channel *widget.Channel) *WebhookRoutes {
	return &WebhookRoutes{widget: channel}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.POST("/webhooks/widget", w.handleWidgetEvent)
	s.GET("/webhooks/widget/replies", w.handleWidgetReplies)
}

func (w *WebhookRoutes) handleWidgetEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	err = w.widget.HandleEvent(c.Request().Context(), c.Request().Header, body)
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, services.ErrDuplicateSourceMessage):
		// Redelivered sequence. Acknowledge so the sender stops retrying.
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, widget.ErrInvalidEnvelope), errors.Is(err, widget.ErrUnsupportedEventType):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "ingestion failed"})
	}
}

func (w *WebhookRoutes) handleWidgetReplies(c echo.Context) error {
	address := strings.TrimSpace(c.QueryParam("address"))
	if address == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "address is required"})
	}
	replies := w.widget.DrainReplies(address)
	if replies == nil {
		replies = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"replies": replies})
}
