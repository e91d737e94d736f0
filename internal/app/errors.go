package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")

	ErrDocumentLimit    = errors.New("you have reached the maximum number of documents allowed")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidDocument  = errors.New("the uploaded file is not a readable pdf")
	ErrIndexFailed      = errors.New("failed to process document after multiple attempts")

	ErrMessageEmpty   = errors.New("no messages provided")
	ErrPersistMessage = errors.New("failed to save message to database")
)
