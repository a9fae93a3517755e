package device

import (
	"encoding/json"
	"fmt"
)

// keyMsg is the envelope field carrying the message kind.
const keyMsg = "msg"

// routeResult describes what one inbound message did.
type routeResult struct {
	kind    MessageKind
	changed bool
	state   State
	sensor  Sensor

	// skipped names sensor keys left out for carrying a non-numeric token.
	skipped []string
}

// router dispatches inbound envelopes to the store.
type router struct {
	store *Store

	// refresh requests a fresh CURRENT-STATE. It is called with no store
	// lock held.
	refresh func() error
}

// route parses one envelope and applies it.
//
// The payload is fully parsed before the store is touched; a parse error
// leaves the snapshot unchanged. Unknown kinds are not an error.
func (r *router) route(payload []byte) (routeResult, error) {
	var env fields
	if err := json.Unmarshal(payload, &env); err != nil || env == nil {
		return routeResult{}, fmt.Errorf("%w: envelope is not a JSON object", ErrMalformedMessage)
	}

	msg, err := env.str(keyMsg)
	if err != nil {
		return routeResult{}, err
	}
	delete(env, keyMsg)

	res := routeResult{kind: MessageKind(msg)}

	switch res.kind {
	case MsgCurrentState:
		next, err := parseCurrentState(env)
		if err != nil {
			return res, err
		}
		res.state, res.sensor = r.store.ReplaceState(next)
		res.changed = true

	case MsgLocation:
		position, err := parseLocation(env)
		if err != nil {
			return res, err
		}
		res.state, res.sensor = r.store.SetPosition(position)
		res.changed = true

	case MsgSensorData:
		next, err := parseSensor(env)
		if err != nil {
			return res, err
		}
		res.skipped = next.skipped
		if next.empty() {
			res.state, res.sensor = r.store.Snapshot()
			break
		}
		res.state, res.sensor = r.store.MergeSensor(next)
		res.changed = true

	case MsgStateChange:
		if err := r.refresh(); err != nil {
			return res, fmt.Errorf("requesting current state: %w", err)
		}
	}

	return res, nil
}
