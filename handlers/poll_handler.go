package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"poll-decision-backend/eligibility"
	"poll-decision-backend/models"
	"poll-decision-backend/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PollHandler exposes the poll lifecycle over HTTP. The acting user comes
// from the X-User-ID header.
type PollHandler struct {
	polls *service.PollLifecycle
	log   *zap.Logger
}

func NewPollHandler(polls *service.PollLifecycle, log *zap.Logger) *PollHandler {
	return &PollHandler{polls: polls, log: log.Named("http")}
}

// Register mounts the poll routes on r.
func (h *PollHandler) Register(r gin.IRouter) {
	polls := r.Group("/polls", RequireActor())
	{
		polls.POST("", h.Create)
		polls.GET("/:id", h.Get)
		polls.POST("/:id/open", h.Open)
		polls.PUT("/:id/options", h.UpdateOptions)
		polls.POST("/:id/stances", h.CastStance)
		polls.POST("/:id/invitations", h.InviteVoters)
		polls.DELETE("/:id/voters/:participant_id", h.RevokeVoter)
		polls.POST("/:id/close", h.Close)
		polls.PUT("/:id/anonymous", h.SetAnonymous)
		polls.PUT("/:id/hide_results", h.SetHideResults)
		polls.PUT("/:id/group", h.SetGroup)
		polls.PUT("/:id/discussion", h.SetDiscussion)
		polls.GET("/:id/results", h.Results)
		polls.GET("/:id/eligibility", h.Eligibility)
		polls.GET("/:id/events", h.Events)
	}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, fmt.Errorf("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return uint(v), true
}

func (h *PollHandler) respond(c *gin.Context, status int, v interface{}, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(status, v)
}

// Create handles POST /polls.
func (h *PollHandler) Create(c *gin.Context) {
	var in service.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.Create(c.Request.Context(), actorID(c), in)
	h.respond(c, http.StatusCreated, poll, err)
}

func (h *PollHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	view, err := h.polls.Get(c.Request.Context(), actorID(c), id)
	h.respond(c, http.StatusOK, view, err)
}

type openRequest struct {
	ClosingAt *time.Time `json:"closing_at"`
}

func (h *PollHandler) Open(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.Open(c.Request.Context(), actorID(c), id, req.ClosingAt)
	h.respond(c, http.StatusOK, poll, err)
}

type optionsRequest struct {
	Options []string `json:"options"`
}

func (h *PollHandler) UpdateOptions(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req optionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.UpdateOptions(c.Request.Context(), actorID(c), id, req.Options)
	h.respond(c, http.StatusOK, poll, err)
}

func (h *PollHandler) CastStance(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in service.CastInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	stance, err := h.polls.CastStance(c.Request.Context(), actorID(c), id, in)
	h.respond(c, http.StatusCreated, stance, err)
}

type inviteRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required,min=1"`
	Admin   bool   `json:"admin"`
}

func (h *PollHandler) InviteVoters(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.polls.InviteVoters(c.Request.Context(), actorID(c), id, req.UserIDs, req.Admin)
	h.respond(c, http.StatusCreated, gin.H{"invited": created}, err)
}

func (h *PollHandler) RevokeVoter(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	participant, ok := uintParam(c, "participant_id")
	if !ok {
		return
	}
	poll, err := h.polls.RevokeVoter(c.Request.Context(), actorID(c), id, participant)
	h.respond(c, http.StatusOK, poll, err)
}

func (h *PollHandler) Close(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	poll, err := h.polls.Close(c.Request.Context(), actorID(c), id)
	h.respond(c, http.StatusOK, poll, err)
}

type anonymousRequest struct {
	Anonymous *bool `json:"anonymous" binding:"required"`
}

func (h *PollHandler) SetAnonymous(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req anonymousRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.SetAnonymous(c.Request.Context(), actorID(c), id, *req.Anonymous)
	h.respond(c, http.StatusOK, poll, err)
}

type hideResultsRequest struct {
	HideResults models.HideResults `json:"hide_results" binding:"required"`
}

func (h *PollHandler) SetHideResults(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req hideResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.SetHideResults(c.Request.Context(), actorID(c), id, req.HideResults)
	h.respond(c, http.StatusOK, poll, err)
}

type groupRequest struct {
	GroupID *uint `json:"group_id"`
}

func (h *PollHandler) SetGroup(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.SetGroup(c.Request.Context(), actorID(c), id, req.GroupID)
	h.respond(c, http.StatusOK, poll, err)
}

type discussionRequest struct {
	DiscussionID *uint `json:"discussion_id"`
}

func (h *PollHandler) SetDiscussion(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req discussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	poll, err := h.polls.SetDiscussion(c.Request.Context(), actorID(c), id, req.DiscussionID)
	h.respond(c, http.StatusOK, poll, err)
}

func (h *PollHandler) Results(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := h.polls.Results(c.Request.Context(), actorID(c), id)
	h.respond(c, http.StatusOK, res, err)
}

// RolesResponse lists each role as sorted user ids.
type RolesResponse struct {
	Administrators []uint `json:"administrators"`
	Voters         []uint `json:"voters"`
	Members        []uint `json:"members"`
	NonVoters      []uint `json:"non_voters"`
}

func newRolesResponse(r eligibility.Roles) RolesResponse {
	return RolesResponse{
		Administrators: r.Administrators.Sorted(),
		Voters:         r.Voters.Sorted(),
		Members:        r.Members.Sorted(),
		NonVoters:      r.NonVoters.Sorted(),
	}
}

func (h *PollHandler) Eligibility(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	roles, err := h.polls.Roles(c.Request.Context(), actorID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newRolesResponse(roles))
}

// Events handles GET /polls/:id/events, the poll's audit history.
func (h *PollHandler) Events(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	events, err := h.polls.Events(c.Request.Context(), actorID(c), id)
	h.respond(c, http.StatusOK, gin.H{"events": events}, err)
}
