package notification

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/localnotify/internal/model"
	notificationService "github.com/jwalitptl/localnotify/internal/service/notification"
	"github.com/jwalitptl/localnotify/pkg/errors"
	"github.com/jwalitptl/localnotify/pkg/httputil"
)

// NotificationServicer is the part of the scheduling service the HTTP
// surface drives; *notification.Service implements it.
type NotificationServicer interface {
	RequestAuthorization(ctx context.Context) bool
	CheckAuthorizationStatus(ctx context.Context) error
	AuthorizationStatus() model.AuthorizationStatus
	ScheduleNotification(ctx context.Context, req *model.NotificationRequest) error
	CancelNotification(ctx context.Context, id string) error
	CancelAllNotifications(ctx context.Context) error
	LoadPendingNotifications(ctx context.Context) error
	PendingNotifications() []*model.NotificationRequest
	Snapshot() notificationService.State
}

type Handler struct {
	service NotificationServicer
}

func NewHandler(service NotificationServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/authorization")
	{
		auth.GET("", h.GetAuthorization)
		auth.POST("/request", h.RequestAuthorization)
	}

	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.ScheduleNotification)
		notifications.GET("", h.ListNotifications)
		notifications.GET("/:id", h.GetNotification)
		notifications.DELETE("/:id", h.CancelNotification)
		notifications.DELETE("", h.CancelAllNotifications)
	}

	r.GET("/state", h.GetState)
}

type scheduleRequest struct {
	ID                 string            `json:"id" binding:"omitempty,max=255"`
	Title              string            `json:"title"`
	Body               string            `json:"body"`
	Date               time.Time         `json:"date"`
	Repeats            bool              `json:"repeats"`
	RepeatInterval     string            `json:"repeat_interval"`
	CategoryIdentifier string            `json:"category_identifier"`
	UserInfo           map[string]string `json:"user_info"`
}

// toModel leaves interval checks to the service so its precondition order
// holds for HTTP callers too.
func (r scheduleRequest) toModel() *model.NotificationRequest {
	opts := []model.RequestOption{
		model.WithCategory(r.CategoryIdentifier),
		model.WithUserInfo(r.UserInfo),
	}
	if r.ID != "" {
		opts = append(opts, model.WithID(r.ID))
	}

	req := model.NewNotificationRequest(r.Title, r.Body, r.Date, opts...)
	req.Repeats = r.Repeats
	if raw := strings.TrimSpace(r.RepeatInterval); raw != "" {
		interval, err := model.ParseRepeatInterval(raw)
		if err != nil {
			interval = model.RepeatInterval(raw)
		}
		req.RepeatInterval = &interval
	}
	return req
}

type authorizationResponse struct {
	Status      model.AuthorizationStatus `json:"status"`
	DisplayName string                    `json:"display_name"`
	CanSchedule bool                      `json:"can_schedule"`
	Granted     *bool                     `json:"granted,omitempty"`
}

func newAuthorizationResponse(status model.AuthorizationStatus) authorizationResponse {
	return authorizationResponse{
		Status:      status,
		DisplayName: status.DisplayName(),
		CanSchedule: status.CanSchedule(),
	}
}

type notificationResponse struct {
	*model.NotificationRequest
	DeepLink string `json:"deep_link,omitempty"`
}

func newNotificationResponses(pending []*model.NotificationRequest) []notificationResponse {
	out := make([]notificationResponse, 0, len(pending))
	for _, p := range pending {
		link, _ := p.DeepLink()
		out = append(out, notificationResponse{NotificationRequest: p, DeepLink: link})
	}
	return out
}

// GetAuthorization re-reads the permission from the backend.
func (h *Handler) GetAuthorization(c *gin.Context) {
	if err := h.service.CheckAuthorizationStatus(c.Request.Context()); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, newAuthorizationResponse(h.service.AuthorizationStatus()))
}

func (h *Handler) RequestAuthorization(c *gin.Context) {
	granted := h.service.RequestAuthorization(c.Request.Context())
	resp := newAuthorizationResponse(h.service.AuthorizationStatus())
	resp.Granted = &granted
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) ScheduleNotification(c *gin.Context) {
	var body scheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httputil.RespondWithError(c, errors.InvalidRequest(err))
		return
	}

	req := body.toModel()
	if err := h.service.ScheduleNotification(c.Request.Context(), req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, req)
}

// ListNotifications returns the cached pending set; ?reload=true asks the
// backend first.
func (h *Handler) ListNotifications(c *gin.Context) {
	if reload, _ := strconv.ParseBool(c.DefaultQuery("reload", "false")); reload {
		if err := h.service.LoadPendingNotifications(c.Request.Context()); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}
	httputil.RespondWithSuccess(c, newNotificationResponses(h.service.PendingNotifications()))
}

// GetNotification looks the id up in the cached pending set.
func (h *Handler) GetNotification(c *gin.Context) {
	id := c.Param("id")
	for _, p := range h.service.PendingNotifications() {
		if p.ID == id {
			link, _ := p.DeepLink()
			httputil.RespondWithSuccess(c, notificationResponse{NotificationRequest: p, DeepLink: link})
			return
		}
	}
	httputil.RespondWithError(c, errors.NewNotFound("notification", nil))
}

func (h *Handler) CancelNotification(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		httputil.RespondWithError(c, errors.NewBadRequest("notification id is required", nil))
		return
	}
	if err := h.service.CancelNotification(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CancelAllNotifications(c *gin.Context) {
	if err := h.service.CancelAllNotifications(c.Request.Context()); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetState(c *gin.Context) {
	state := h.service.Snapshot()
	httputil.RespondWithSuccess(c, gin.H{
		"authorization": newAuthorizationResponse(state.AuthorizationStatus),
		"pending":       newNotificationResponses(state.PendingNotifications),
		"last_error":    state.LastError,
	})
}

