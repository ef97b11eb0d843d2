package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Pairline/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrBadPayload   = errors.New("bad payload")
	ErrUnknownEvent = errors.New("unknown event")
	ErrMissingField = errors.New("missing field")
)

type envelope struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

// decodeInbound parses one client frame into its typed event.
func decodeInbound(frame []byte) (domain.Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		env.Data = json.RawMessage("{}")
	}

	switch env.Event {
	case domain.InMessageSend:
		var p domain.SendMessage
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, missing("receiverId")
		}
		return p, nil

	case domain.InTypingStart:
		var p domain.TypingStart
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, missing("receiverId")
		}
		return p, nil

	case domain.InTypingStop:
		var p domain.TypingStop
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, missing("receiverId")
		}
		return p, nil

	case domain.InCallInitiate:
		var p domain.CallInitiate
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, missing("receiverId")
		}
		if len(p.Offer) == 0 {
			return nil, missing("offer")
		}
		if err := validateDescription(p.Offer, webrtc.SDPTypeOffer); err != nil {
			return nil, err
		}
		return p, nil

	case domain.InCallAnswer:
		var p domain.CallAnswer
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.CallerID == "" {
			return nil, missing("callerId")
		}
		if len(p.Answer) == 0 {
			return nil, missing("answer")
		}
		if err := validateDescription(p.Answer, webrtc.SDPTypeAnswer); err != nil {
			return nil, err
		}
		return p, nil

	case domain.InCallReject:
		var p domain.CallReject
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.CallerID == "" {
			return nil, missing("callerId")
		}
		return p, nil

	case domain.InCallCandidate:
		var p domain.CallICECandidate
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.TargetID == "" {
			return nil, missing("targetId")
		}
		if len(p.Candidate) == 0 {
			return nil, missing("candidate")
		}
		if err := validateCandidate(p.Candidate); err != nil {
			return nil, err
		}
		return p, nil

	case domain.InCallEnd:
		var p domain.CallEnd
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.TargetID == "" {
			return nil, missing("targetId")
		}
		return p, nil

	case domain.InPing:
		return domain.Ping{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func decodeData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
