package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"

	"github.com/gin-gonic/gin"
)

// RoomHandler exposes the arena use cases over JSON.
type RoomHandler struct {
	service *app.ArenaService
}

func NewRoomHandler(service *app.ArenaService) *RoomHandler {
	return &RoomHandler{service: service}
}

type createRoomRequest struct {
	Questions     []domain.Question `json:"questions"`
	QuestionSetID string            `json:"questionSetId"`
}

type advanceRequest struct {
	Action        string `json:"action"`
	ExpectedIndex *int   `json:"expectedIndex"`
}

type answerRequest struct {
	QuestionIndex *int       `json:"questionIndex"`
	AnswerIndex   *int       `json:"answerIndex"`
	SubmittedAt   *time.Time `json:"submittedAt"`
}

func (r answerRequest) toSubmission() (domain.AnswerSubmission, error) {
	if r.QuestionIndex == nil || r.AnswerIndex == nil {
		return domain.AnswerSubmission{}, fmt.Errorf("%w: questionIndex and answerIndex are required", domain.ErrInvalidInput)
	}
	sub := domain.AnswerSubmission{QuestionIndex: *r.QuestionIndex, AnswerIndex: *r.AnswerIndex}
	if r.SubmittedAt != nil {
		sub.SubmittedAt = *r.SubmittedAt
	}
	return sub, nil
}

func (h *RoomHandler) Validate(c *gin.Context) {
	v, err := h.service.ValidateRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), identityFrom(c), app.CreateRoomRequest{
		Questions:     req.Questions,
		QuestionSetID: req.QuestionSetID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) Join(c *gin.Context) {
	player, err := h.service.JoinRoom(c.Request.Context(), c.Param("code"), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *RoomHandler) Advance(c *gin.Context) {
	var req advanceRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	transition, err := h.service.AdvanceRoom(c.Request.Context(), c.Param("code"), identityFrom(c), action, req.ExpectedIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transition)
}

func (h *RoomHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	sub, err := req.toSubmission()
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.service.SubmitAnswer(c.Request.Context(), c.Param("code"), identityFrom(c), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RoomHandler) Analytics(c *gin.Context) {
	report, err := h.service.GetRoomAnalytics(c.Request.Context(), c.Param("code"), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
