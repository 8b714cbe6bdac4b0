package store

import "strings"

const (
	TopicPrefix       = "topic:"
	TaskPrefix        = "task:"
	FixSuccessPrefix  = "fix:success:"
	SignalPrefix      = "signal:"
	RulePrefix        = "rule:"
	TopicsIndex       = "idx:topics"
	SuccessfulFixesIx = "idx:successful_fixes"

	topicsBySignalCount = "topics:by_signal_count"
	tasksByCreated      = "tasks:by_created"
)

func TopicKey(id string) string {
	return TopicPrefix + id
}

func TaskKey(id string) string {
	return TaskPrefix + id
}

func FixSuccessKey(taskID string) string {
	return FixSuccessPrefix + taskID
}

func SignalKey(id string) string {
	return SignalPrefix + id
}

func RuleKey(id string) string {
	return RulePrefix + id
}

// topicSignalsKey holds the bounded sample of signal texts for a topic. It
// deliberately does not start with TopicPrefix.
func topicSignalsKey(topicID string) string {
	return "signals:topic:" + topicID
}

func productRulesKey(product string) string {
	return "rules:product:" + strings.ToLower(product)
}

// idFromKey strips a record prefix from a search document id.
func idFromKey(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}
