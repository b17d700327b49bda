package mqhandler

import (
	"encoding/json"
	"fmt"

	mqcontracts "interruptd/contracts/mq"
	"interruptd/pkg/outbox"
)

// decode unwraps the outbox envelope and the user/pattern fields every payload carries.
func decode(raw json.RawMessage) (*outbox.Envelope, *mqcontracts.EventUser, error) {
	var env outbox.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	var who mqcontracts.EventUser
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &who); err != nil {
			return nil, nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &env, &who, nil
}
