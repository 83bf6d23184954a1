package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"nextjs-proxy-go/internal/client"
	"nextjs-proxy-go/internal/config"
	"nextjs-proxy-go/internal/render"
)

// RenderHandler serves page requests through the render proxy.
type RenderHandler struct {
	renderer        *render.Renderer
	defaultTemplate string
	logger          *slog.Logger
}

// NewRenderHandler creates a RenderHandler.
func NewRenderHandler(r *render.Renderer, cfg *config.Config, logger *slog.Logger) *RenderHandler {
	return &RenderHandler{
		renderer:        r,
		defaultTemplate: cfg.Render.DefaultTemplate,
		logger:          logger.With("component", "render_handler"),
	}
}

// Handle renders the requested page via the Next.js server and streams the
// composed document to the client.
func (h *RenderHandler) Handle(c echo.Context) error {
	req := c.Request()

	err := h.renderer.Render(req.Context(), req, c.Response(), h.defaultTemplate)
	if err != nil {
		return h.mapError(c, err)
	}
	return nil
}

func (h *RenderHandler) mapError(c echo.Context, err error) error {
	var mid *render.MidStreamError
	if errors.As(err, &mid) {
		// Headers and part of the body are already out; a clean error
		// response is impossible. Abort the connection so the client
		// sees a truncated transfer instead of a complete-looking
		// document.
		h.logger.Error("render failed mid-stream, aborting connection",
			"err", err,
			"path", c.Request().URL.Path,
		)
		panic(http.ErrAbortHandler)
	}

	h.logger.Error("render error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, render.ErrTemplateNotFound) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "customization template not found",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "next.js server timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	if errors.Is(err, client.ErrUpstreamUnreachable) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "next.js server unreachable",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "render failed",
	})
}
