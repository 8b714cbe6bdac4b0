package model

import (
	"fmt"
	"strings"
)

// TriageEntry pairs a signal with the topic it almost matched.
type TriageEntry struct {
	SignalID string `json:"signal_id"`
	TopicID  string `json:"topic_id"`
}

// String renders the queue wire form "<signal>:<topic>".
func (e TriageEntry) String() string {
	return e.SignalID + ":" + e.TopicID
}

func ParseTriageEntry(raw string) (TriageEntry, error) {
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return TriageEntry{}, fmt.Errorf("malformed triage entry %q", raw)
	}
	return TriageEntry{SignalID: raw[:idx], TopicID: raw[idx+1:]}, nil
}

type TriageAction string

const (
	TriageActionAttach  TriageAction = "attach"
	TriageActionCreate  TriageAction = "create"
	TriageActionDismiss TriageAction = "dismiss"
)

func (a TriageAction) Valid() bool {
	switch a {
	case TriageActionAttach, TriageActionCreate, TriageActionDismiss:
		return true
	default:
		return false
	}
}
