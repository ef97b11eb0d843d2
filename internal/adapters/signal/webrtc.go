package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	ErrInvalidSDP       = errors.New("invalid session description")
	ErrInvalidCandidate = errors.New("invalid ice candidate")
)

// validateDescription checks that raw is a session description of the
// expected type with a parseable SDP body. The hub relays the bytes unmodified;
// it never terminates media itself.
func validateDescription(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSDP, err)
	}
	if desc.Type != want {
		return fmt.Errorf("%w: type %s, want %s", ErrInvalidSDP, desc.Type, want)
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSDP, err)
	}
	return nil
}

// validateCandidate accepts any well-formed candidate init, including the
// empty end-of-candidates marker.
func validateCandidate(raw json.RawMessage) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ci); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCandidate, err)
	}
	return nil
}
