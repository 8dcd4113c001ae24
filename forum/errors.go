package forum

import "fmt"

// Error is a user-visible failure with a stable code the caller maps to
// display text. Messages never leak storage keys or internal state.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is makes errors.Is match on code, so parametrized instances (length
// violations with the configured bound baked in) compare equal to their
// sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Validation errors
var (
	ErrInvalidUID         = &Error{"invalid-uid", "invalid user id"}
	ErrInvalidPID         = &Error{"invalid-pid", "invalid parent post"}
	ErrNoCategory         = &Error{"no-category", "category does not exist"}
	ErrGuestHandleInvalid = &Error{"guest-handle-invalid", "guest handle is invalid"}
	ErrUsernameTaken      = &Error{"username-taken", "that name is already taken"}
	ErrTitleTooShort      = &Error{"title-too-short", "title is too short"}
	ErrTitleTooLong       = &Error{"title-too-long", "title is too long"}
	ErrContentTooShort    = &Error{"content-too-short", "content is too short"}
	ErrContentTooLong     = &Error{"content-too-long", "content is too long"}
	ErrInvalidTags        = &Error{"invalid-tags", "tags are not allowed in this category"}
	ErrTooManyPosts       = &Error{"too-many-posts", "you are posting too frequently"}
)

// Authorization errors
var (
	ErrNoPrivileges = &Error{"no-privileges", "you do not have enough privileges for this action"}
	ErrTopicLocked  = &Error{"topic-locked", "topic is locked"}
	ErrTopicDeleted = &Error{"topic-deleted", "topic is deleted"}
)

// State errors
var (
	ErrNoPost      = &Error{"no-post", "post does not exist"}
	ErrNoTopic     = &Error{"no-topic", "topic does not exist"}
	ErrInvalidData = &Error{"invalid-data", "invalid data"}
)

// Reputation-gate errors
var (
	ErrNotEnoughReputation = &Error{"not-enough-reputation-to-post-links", "you need more reputation to post links"}
)

// lengthError returns a copy of the sentinel with the configured bound in
// the message.
func lengthError(sentinel *Error, bound int) error {
	return &Error{
		Code:    sentinel.Code,
		Message: fmt.Sprintf("%s (limit %d)", sentinel.Message, bound),
	}
}

// reputationError returns the reputation-gate error with the configured
// minimum in the message.
func reputationError(min int) error {
	return &Error{
		Code:    ErrNotEnoughReputation.Code,
		Message: fmt.Sprintf("you need %d reputation to post links", min),
	}
}
