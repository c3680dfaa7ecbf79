package api

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func (r ChatRequest) Validate() error {
	return validate.Struct(r)
}

func (r CreateConversationRequest) Validate() error {
	return validate.Struct(r)
}

func (r UpdateConversationRequest) Validate() error {
	return validate.Struct(r)
}

func (p ListConversationsParams) Validate() error {
	return validate.Struct(p)
}
