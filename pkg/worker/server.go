package worker

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

// Server exposes the batch contract over HTTP: POST /generate-pdf plus
// health and metrics endpoints.
type Server struct {
	echo *echo.Echo
	svc  *Service
}

func NewServer(svc *Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, svc: svc}
	e.POST(GeneratePath, s.handleGenerate)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Success: false, Error: CodeInternal})
	}
	if req.UserKey == "" || req.ImageDir == "" {
		return c.JSON(http.StatusBadRequest, Response{Success: false, Error: CodeInternal})
	}

	logger.InfoCF("worker", "Batch request", map[string]interface{}{
		"user": req.UserKey,
		"dir":  req.ImageDir,
	})
	resp := s.svc.ProcessBatch(c.Request().Context(), req)
	return c.JSON(statusFor(resp), resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor keeps HTTP codes aligned with the taxonomy so curl debugging
// reads sensibly; clients should still trust the body over the status.
func statusFor(resp Response) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.Error {
	case CodeHandshakeTimeout:
		return http.StatusRequestTimeout
	case CodeBatchUnrecoverable:
		return http.StatusUnprocessableEntity
	case CodeSizeExceeded:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
