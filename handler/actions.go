package handler

import (
	"fmt"
	"strconv"
	"strings"
)

// actionKind is the closed set of inline-button actions. Callback data is
// decoded exactly once, here; everything downstream switches on the variant.
type actionKind int

const (
	actionUnknown actionKind = iota
	// send a reply prompt for the question
	actionReplyPrompt
	// per-admin display state only, never touches the question
	actionMarkSeen
	actionMarkDone
	// pure read
	actionShowStats
)

type action struct {
	kind       actionKind
	questionID uint
}

func encodeAction(kind actionKind, questionID uint) string {
	switch kind {
	case actionReplyPrompt:
		return fmt.Sprintf("reply:%d", questionID)
	case actionMarkSeen:
		return fmt.Sprintf("seen:%d", questionID)
	case actionMarkDone:
		return fmt.Sprintf("done:%d", questionID)
	case actionShowStats:
		return "stats"
	}
	return ""
}

func decodeAction(data string) (action, bool) {
	if data == "stats" {
		return action{kind: actionShowStats}, true
	}

	prefix, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return action{}, false
	}
	var kind actionKind
	switch prefix {
	case "reply":
		kind = actionReplyPrompt
	case "seen":
		kind = actionMarkSeen
	case "done":
		kind = actionMarkDone
	default:
		return action{}, false
	}

	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return action{}, false
	}
	return action{kind: kind, questionID: uint(id)}, true
}
