package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownWait = 10 * time.Second

// Mounter registers extra routes, such as the Twilio webhooks.
type Mounter interface {
	Mount(e *echo.Echo)
}

// NewServer builds the echo server with request logging and panic recovery.
func NewServer(h *Handler, log *slog.Logger, mounts ...Mounter) *echo.Echo {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				log.Warn("http_request", append(attrs, "error", v.Error.Error())...)
				return nil
			}
			log.Debug("http_request", attrs...)
			return nil
		},
	}))
	h.RegisterRoutes(e)
	for _, m := range mounts {
		m.Mount(e)
	}
	return e
}

// Serve runs e on addr until ctx is done, then shuts it down.
func Serve(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWait)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
