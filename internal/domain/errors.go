package domain

import "errors"

var (
	ErrNoConnection        = errors.New("no network connection")
	ErrAlreadyRunning      = errors.New("download already in progress")
	ErrInstanceNotFound    = errors.New("instance not found")
	ErrUnknownPreference   = errors.New("unknown preference key")
	ErrInvalidPreference   = errors.New("invalid preference value")
	ErrAdminPassword       = errors.New("admin password incorrect")
	ErrTooManyAttempts     = errors.New("too many password attempts")
	ErrDirectoryCreation   = errors.New("cannot create collect directory")
	ErrUnsupportedProtocol = errors.New("unsupported server protocol")
)
