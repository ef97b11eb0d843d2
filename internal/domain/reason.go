package domain

import "errors"

// ReasonInternal is reported for errors that carry no client-facing code.
const ReasonInternal = "internal_error"

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrEmptyReceiver, "empty_receiver"},
	{ErrSelfTarget, "self_target"},
	{ErrEmptyContent, "empty_content"},
	{ErrContentTooLong, "content_too_long"},
	{ErrMissingMedia, "missing_media"},
	{ErrUnknownMessageType, "unknown_message_type"},
	{ErrUnknownCallType, "unknown_call_type"},
	{ErrUserIDEmpty, "empty_user_id"},
	{ErrUserIDTooLong, "user_id_too_long"},
}

// ReasonCode maps a domain error to the token sent in error and
// message:error payloads.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return ReasonInternal
}
