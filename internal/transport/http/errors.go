package http

import (
	"errors"
	"net/http"

	"quiz-arena/internal/domain"

	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "1"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// order matters: the first match wins
var errorMappings = []errorMapping{
	{domain.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{domain.ErrPlayerNotFound, http.StatusNotFound, "player_not_found"},
	{domain.ErrQuestionSetNotFound, http.StatusNotFound, "question_set_not_found"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrAlreadyAnswered, http.StatusConflict, "already_answered"},
	{domain.ErrRoomFull, http.StatusConflict, "room_full"},
	{domain.ErrRoomFinished, http.StatusGone, "room_finished"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
}

// classify maps an error to its HTTP status and machine code.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Code: code, Message: message})
}
