package handler

import (
	"net/http"

	"livepoll/internal/commands"
	"livepoll/internal/domain/participant"
	"livepoll/internal/domain/poll"
	"livepoll/internal/services"
	"livepoll/internal/transport/httpdto"
	livepoll_errors "livepoll/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ParticipantLister is satisfied by the connection hub.
type ParticipantLister interface {
	Participants() []participant.Participant
}

type PollHandler struct {
	service      *services.PollService
	participants ParticipantLister
}

func NewPollHandler(service *services.PollService, participants ParticipantLister) *PollHandler {
	return &PollHandler{service: service, participants: participants}
}

type activePollResponse struct {
	Poll     poll.Poll `json:"poll"`
	TimeLeft float64   `json:"timeLeft"`
}

func (h *PollHandler) List(c *gin.Context) {
	items, err := h.service.History(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"polls": items, "total": len(items)}))
}

func (h *PollHandler) Active(c *gin.Context) {
	item, err := h.service.ActivePoll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	remaining := item.Remaining(h.service.Now())
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(activePollResponse{
		Poll:     item.Public(),
		TimeLeft: remaining.Seconds(),
	}))
}

func (h *PollHandler) Create(c *gin.Context) {
	var req commands.CreatePollCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(livepoll_errors.Invalid("invalid request: %v", err))
		return
	}
	item, err := h.service.CreatePoll(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(item))
}

func (h *PollHandler) Close(c *gin.Context) {
	item, transitioned, err := h.service.ClosePoll(c.Request.Context(), c.Param("id"), services.ReasonManual)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"poll": item, "closed": transitioned}))
}

func (h *PollHandler) Participants(c *gin.Context) {
	items := h.participants.Participants()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"participants": items, "total": len(items)}))
}
