package bot

import (
	"fmt"
	"strconv"
	"strings"

	"moviebot/internal/lifecycle"
)

// Callback data is "<code>[:<arg>[:<arg>]]" and must stay under 64 bytes
var actionCodes = map[lifecycle.ActionKind]string{
	lifecycle.ActionSelectMovie:   "sm",
	lifecycle.ActionNoneCorrect:   "nc",
	lifecycle.ActionConfirm:       "cf",
	lifecycle.ActionCancel:        "cx",
	lifecycle.ActionApprove:       "ap",
	lifecycle.ActionReject:        "rj",
	lifecycle.ActionMethodSearch:  "ms",
	lifecycle.ActionMethodLink:    "ml",
	lifecycle.ActionMethodUpload:  "mu",
	lifecycle.ActionSelectQuality: "sq",
	lifecycle.ActionSendVersion:   "sv",
}

var codeActions = func() map[string]lifecycle.ActionKind {
	m := make(map[string]lifecycle.ActionKind, len(actionCodes))
	for kind, code := range actionCodes {
		m[code] = kind
	}
	return m
}()

// encodeAction serializes a callback action into button data
func encodeAction(a lifecycle.Action) (string, error) {
	code, ok := actionCodes[a.Kind]
	if !ok {
		return "", fmt.Errorf("action %q has no callback data", a.Kind)
	}

	switch a.Kind {
	case lifecycle.ActionSelectMovie:
		return code + ":" + strconv.Itoa(a.Index), nil
	case lifecycle.ActionApprove, lifecycle.ActionReject,
		lifecycle.ActionMethodSearch, lifecycle.ActionMethodLink, lifecycle.ActionMethodUpload:
		return code + ":" + strconv.FormatInt(a.RequestID, 10), nil
	case lifecycle.ActionSelectQuality, lifecycle.ActionSendVersion:
		return code + ":" + strconv.FormatInt(a.RequestID, 10) + ":" + strconv.Itoa(a.MessageID), nil
	default:
		return code, nil
	}
}

// decodeAction parses button data back into an action
func decodeAction(data string) (lifecycle.Action, error) {
	parts := strings.Split(data, ":")
	kind, ok := codeActions[parts[0]]
	if !ok {
		return lifecycle.Action{}, fmt.Errorf("unknown callback %q", data)
	}
	action := lifecycle.Action{Kind: kind}
	args := parts[1:]

	want := 0
	switch kind {
	case lifecycle.ActionSelectMovie:
		want = 1
	case lifecycle.ActionApprove, lifecycle.ActionReject,
		lifecycle.ActionMethodSearch, lifecycle.ActionMethodLink, lifecycle.ActionMethodUpload:
		want = 1
	case lifecycle.ActionSelectQuality, lifecycle.ActionSendVersion:
		want = 2
	}
	if len(args) != want {
		return lifecycle.Action{}, fmt.Errorf("callback %q: want %d arguments, got %d", data, want, len(args))
	}

	var err error
	switch kind {
	case lifecycle.ActionSelectMovie:
		action.Index, err = strconv.Atoi(args[0])
	case lifecycle.ActionSelectQuality, lifecycle.ActionSendVersion:
		action.RequestID, err = strconv.ParseInt(args[0], 10, 64)
		if err == nil {
			action.MessageID, err = strconv.Atoi(args[1])
		}
	default:
		if want == 1 {
			action.RequestID, err = strconv.ParseInt(args[0], 10, 64)
		}
	}
	if err != nil {
		return lifecycle.Action{}, fmt.Errorf("callback %q: %w", data, err)
	}
	return action, nil
}
