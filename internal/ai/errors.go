package ai

import "errors"

var (
	ErrMissingAPIKey = errors.New("api key is not set")
	ErrInvalidAPIKey = errors.New("api key has an invalid format")
	ErrLLMConfig     = errors.New("llm config is invalid")
)
