package voxerrors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("file too large")
	ErrRateLimited        = errors.New("rate limited")
	ErrQueueFull          = errors.New("queue full")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotUploaded        = errors.New("file not uploaded")
)

// Session errors
var (
	ErrUnnamed           = errors.New("connection has no display name")
	ErrLastAdministrator = errors.New("at least one administrator must remain")
	ErrAdministratorRole = errors.New("exactly one role must carry ADMINISTRATOR")
	ErrNotVoiceChannel   = errors.New("channel is not a voice channel")
	ErrNotTextChannel    = errors.New("channel is not a text channel")
	ErrInOtherVoice      = errors.New("already connected to another voice channel")
	ErrNotVoiceMember    = errors.New("not a member of this voice channel")
	ErrShareTaken        = errors.New("someone is already sharing their screen")
	ErrNotSharer         = errors.New("not the registered screen sharer")
	ErrChannelNameTaken  = errors.New("channel name already in use")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
