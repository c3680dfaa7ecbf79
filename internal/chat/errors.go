package chat

import (
	"errors"
	"strings"

	"docchat-backend/internal/database"

	"github.com/go-playground/validator/v10"
)

var (
	ErrEmptyMessage   = errors.New("message must include text or attachments")
	ErrTooManyTurns   = errors.New("too many active conversations, try again later")
	ErrTurnInProgress = errors.New("a response is already in progress")
	ErrInvalidRequest = errors.New("invalid chat request")
	ErrResponseFailed = errors.New("failed to generate response")
)

// ClientMessage is the text sent to the client in an error event.
func ClientMessage(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, database.ErrConversationNotFound):
		return "Conversation not found"
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return ErrInvalidRequest.Error() + ": invalid " + strings.Join(fields, ", ")
	default:
		return err.Error()
	}
}
