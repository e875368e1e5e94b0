package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/nguyentranbao-ct/chat-sync/internal/connectivity"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/chat-sync/internal/server/middleware"
	"github.com/nguyentranbao-ct/chat-sync/internal/session"
)

type Controller interface {
	Health(c echo.Context) error
	OpenSession(c echo.Context, req session.OpenParams) (*pkgmdw.Response, error)
	CloseSession(c echo.Context, _ pkgmdw.NoRequest) (*pkgmdw.Response, error)
	ListMessages(c echo.Context) error
	SendMessage(c echo.Context, req SendMessageRequest) (*pkgmdw.Response, error)
	GetConnectivity(c echo.Context) error
	SetConnectivity(c echo.Context, req SetConnectivityRequest) (*pkgmdw.Response, error)
	Stream(c echo.Context) error
}

type controller struct {
	sessions session.Manager
	monitor  connectivity.Monitor
	logger   *zap.SugaredLogger
}

func NewController(sessions session.Manager, monitor connectivity.Monitor, logger *zap.SugaredLogger) Controller {
	return &controller{
		sessions: sessions,
		monitor:  monitor,
		logger:   logger.Named("http"),
	}
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":       "healthy",
		"service":      "chat-sync",
		"connectivity": string(h.monitor.Current()),
	})
}

func (h *controller) OpenSession(c echo.Context, req session.OpenParams) (*pkgmdw.Response, error) {
	active, err := h.sessions.Open(c.Request().Context(), req)
	if err != nil {
		return nil, err
	}
	c.Set("user_id", active.User.ID)
	return &pkgmdw.Response{
		Status:  http.StatusCreated,
		Success: true,
		Data:    newSessionView(active),
	}, nil
}

func (h *controller) CloseSession(c echo.Context, _ pkgmdw.NoRequest) (*pkgmdw.Response, error) {
	active, err := h.sessions.Current()
	if err != nil {
		return nil, err
	}
	c.Set("user_id", active.User.ID)
	h.sessions.Close()
	return nil, nil
}

type MessagesView struct {
	SessionID       string             `json:"session_id"`
	State           models.EngineState `json:"state"`
	CanSend         bool               `json:"can_send"`
	BackgroundColor string             `json:"background_color,omitempty"`
	Messages        []models.Message   `json:"messages"`
}

func (h *controller) ListMessages(c echo.Context) error {
	active, err := h.sessions.Current()
	if err != nil {
		return err
	}
	c.Set("user_id", active.User.ID)
	return c.JSON(http.StatusOK, &pkgmdw.Response{
		Success: true,
		Data: MessagesView{
			SessionID:       active.ID,
			State:           active.Engine.State(),
			CanSend:         active.Engine.CanSend(),
			BackgroundColor: active.BackgroundColor,
			Messages:        active.Engine.Messages(),
		},
	})
}

type SendMessageRequest struct {
	Text     *string          `json:"text,omitempty"`
	Image    string           `json:"image,omitempty" validate:"omitempty,url"`
	Audio    string           `json:"audio,omitempty" validate:"omitempty,url"`
	Location *models.Location `json:"location,omitempty"`
}

func (r SendMessageRequest) draft() models.Draft {
	d := models.Draft{Text: r.Text}
	if r.Image != "" || r.Audio != "" || r.Location != nil {
		d.Attachment = &models.Attachment{
			ImageURL: r.Image,
			AudioURL: r.Audio,
			Location: r.Location,
		}
	}
	return d
}

func (h *controller) SendMessage(c echo.Context, req SendMessageRequest) (*pkgmdw.Response, error) {
	active, err := h.sessions.Current()
	if err != nil {
		return nil, err
	}
	c.Set("user_id", active.User.ID)

	id, err := active.Engine.Send(c.Request().Context(), req.draft())
	if err != nil {
		h.logger.Infow("send rejected", "session_id", active.ID, "code", models.Code(err), "error", err)
		return nil, sendError(err)
	}
	return &pkgmdw.Response{
		Status:  http.StatusAccepted,
		Success: true,
		Data:    map[string]string{"id": id},
	}, nil
}

func sendError(err error) error {
	resp := pkgmdw.NewResponseError(err)
	switch {
	case errors.Is(err, models.ErrInvalidDraft):
		resp.Status = http.StatusBadRequest
		resp.ErrorCode = "invalid_draft"
		resp.ErrorMessage = err.Error()
	case errors.Is(err, models.ErrNotSent):
		resp.Status = http.StatusConflict
		resp.ErrorCode = "not_sent"
		resp.ErrorMessage = status.Convert(models.ErrNotSent).Message()
	case errors.Is(err, models.ErrSendFailed):
		resp.Status = http.StatusBadGateway
		resp.ErrorCode = "send_failed"
	}
	return resp
}

type ConnectivityView struct {
	State models.ConnectivityState `json:"state"`
}

func (h *controller) GetConnectivity(c echo.Context) error {
	return c.JSON(http.StatusOK, &pkgmdw.Response{
		Success: true,
		Data:    ConnectivityView{State: h.monitor.Current()},
	})
}

type SetConnectivityRequest struct {
	Connected *bool `json:"connected" validate:"required"`
}

// SetConnectivity lets the host report platform network events when the
// monitor is manual.
func (h *controller) SetConnectivity(c echo.Context, req SetConnectivityRequest) (*pkgmdw.Response, error) {
	manual, ok := h.monitor.(*connectivity.Manual)
	if !ok {
		return nil, models.ErrConnectivityReadOnly
	}
	if manual.SetConnected(*req.Connected) {
		h.logger.Infow("connectivity changed", "state", manual.Current())
	}
	return &pkgmdw.Response{
		Status:  http.StatusOK,
		Success: true,
		Data:    ConnectivityView{State: manual.Current()},
	}, nil
}

type sessionView struct {
	models.Session
	State   models.EngineState `json:"state"`
	CanSend bool               `json:"can_send"`
}

func newSessionView(active *session.Active) sessionView {
	return sessionView{
		Session: active.Session,
		State:   active.Engine.State(),
		CanSend: active.Engine.CanSend(),
	}
}
