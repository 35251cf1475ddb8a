// Package httpapi serves the operator API next to the Twilio webhooks:
// health, live calls, the call archive and outbound call control.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Mercy2112/ai-voice-assistant/pkg/callstore"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/redact"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
)

// Caller places and ends phone calls.
type Caller interface {
	DialWithOptions(ctx context.Context, to, from, url string, opts transports.DialOptions) (string, error)
	Hangup(ctx context.Context, callSID string) error
	VoiceURL(objective string) string
}

// Archive is the read side of the call store.
type Archive interface {
	Get(ctx context.Context, callSID string) (*callstore.Call, error)
	Recent(ctx context.Context, limit int) ([]callstore.Call, error)
}

type Options struct {
	Registry *pipeline.SessionRegistry
	// Health reports whether new calls are accepted.
	Health func() error
	Caller Caller
	// Archive is optional.
	Archive Archive
	// FromNumber is the caller id used when a request does not name one.
	FromNumber string
	Logger     *slog.Logger
}

type Handler struct {
	opts Options
	log  *slog.Logger
}

func NewHandler(opts Options) *Handler {
	return &Handler{opts: opts, log: logging.NewComponentLogger(opts.Logger, "httpapi")}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/calls", h.ListCalls)
	e.GET("/calls/:call_sid", h.GetCall)
	e.DELETE("/calls/:call_sid", h.HangupCall)
	e.POST("/start-call", h.StartCall)
	e.GET("/archive", h.ListArchive)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	body := map[string]any{
		"status":       "healthy",
		"active_calls": h.opts.Registry.Count(),
	}
	if h.opts.Health != nil {
		if err := h.opts.Health(); err != nil {
			body["status"] = "unavailable"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}

// ListCalls lists live calls.
// GET /calls
func (h *Handler) ListCalls(c echo.Context) error {
	calls := h.opts.Registry.Sessions()
	if calls == nil {
		calls = []pipeline.Summary{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"active":   len(calls),
		"draining": h.opts.Registry.Draining(),
		"calls":    calls,
	})
}

// GetCall returns a live call, or the archived record once it has ended.
// GET /calls/:call_sid
func (h *Handler) GetCall(c echo.Context) error {
	callSID := c.Param("call_sid")
	if sess, ok := h.opts.Registry.Get(callSID); ok {
		return c.JSON(http.StatusOK, map[string]any{"live": true, "call": sess.Summary()})
	}
	if h.opts.Archive != nil {
		call, err := h.opts.Archive.Get(c.Request().Context(), callSID)
		if err == nil {
			return c.JSON(http.StatusOK, map[string]any{"live": false, "call": call})
		}
		if !errors.Is(err, callstore.ErrNotFound) {
			h.log.Error("archive_read_failed", "call_sid", callSID, "error", err)
			return errorJSON(c, http.StatusInternalServerError, "failed to read call")
		}
	}
	return errorJSON(c, http.StatusNotFound, "call not found")
}

// HangupCall ends a call through the carrier; the stream's stop event then
// tears the session down.
// DELETE /calls/:call_sid
func (h *Handler) HangupCall(c echo.Context) error {
	callSID := c.Param("call_sid")
	if _, ok := h.opts.Registry.Get(callSID); !ok {
		return errorJSON(c, http.StatusNotFound, "call not found")
	}
	if h.opts.Caller == nil {
		return errorJSON(c, http.StatusNotImplemented, "transport cannot hang up calls")
	}
	if err := h.opts.Caller.Hangup(c.Request().Context(), callSID); err != nil {
		h.log.Warn("hangup_failed", "call_sid", callSID, "error", err)
		return errorJSON(c, http.StatusBadGateway, "hangup failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "call_sid": callSID})
}

// StartCallRequest asks for an outbound call. TargetNumber is accepted in
// place of To.
type StartCallRequest struct {
	To           string `json:"to"`
	TargetNumber string `json:"targetNumber,omitempty"`
	From         string `json:"from,omitempty"`
	Objective    string `json:"objective,omitempty"`
	Timeout      int    `json:"timeout,omitempty"`
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// StartCall places an outbound call whose stream joins this deployment.
// POST /start-call
func (h *Handler) StartCall(c echo.Context) error {
	var req StartCallRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		req.To = strings.TrimSpace(req.TargetNumber)
	}
	if !e164.MatchString(req.To) {
		return errorJSON(c, http.StatusBadRequest, "to must be an E.164 number")
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = h.opts.FromNumber
	}
	if from == "" {
		return errorJSON(c, http.StatusBadRequest, "from is required")
	}
	if h.opts.Health != nil {
		if err := h.opts.Health(); err != nil {
			return errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
	}
	if h.opts.Caller == nil {
		return errorJSON(c, http.StatusNotImplemented, "transport cannot place calls")
	}

	url := h.opts.Caller.VoiceURL(strings.TrimSpace(req.Objective))
	callSID, err := h.opts.Caller.DialWithOptions(c.Request().Context(), req.To, from, url, transports.DialOptions{Timeout: req.Timeout})
	if err != nil {
		h.log.Warn("start_call_failed", "to", redact.Phone(req.To), "error", err)
		return errorJSON(c, http.StatusBadGateway, "failed to place call")
	}
	h.log.Info("call_placed", "call_sid", callSID, "to", redact.Phone(req.To))
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "call_sid": callSID})
}

// ListArchive lists recently ended calls.
// GET /archive?limit=N
func (h *Handler) ListArchive(c echo.Context) error {
	if h.opts.Archive == nil {
		return errorJSON(c, http.StatusNotFound, "archive disabled")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	calls, err := h.opts.Archive.Recent(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("archive_read_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list calls")
	}
	if calls == nil {
		calls = []callstore.Call{}
	}
	return c.JSON(http.StatusOK, map[string]any{"calls": calls})
}
