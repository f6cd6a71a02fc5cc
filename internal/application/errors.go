package application

import (
	"errors"
)

var (
	// ErrThreadLimit means a trial user hit the thread cap. Premium users
	// are not capped.
	ErrThreadLimit = errors.New("thread limit reached for trial plan")

	// ErrRunTimeout means the assistant run outlived the poll ceiling.
	ErrRunTimeout = errors.New("run_timeout: assistant run did not reach a terminal status in time")
)
