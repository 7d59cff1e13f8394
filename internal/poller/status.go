package poller

import "strings"

type statusClass int

const (
	statusUnknown statusClass = iota
	statusPending
	statusCompleted
	statusFailed
)

var statusSynonyms = map[string]statusClass{
	"pending":     statusPending,
	"processing":  statusPending,
	"queued":      statusPending,
	"running":     statusPending,
	"in_progress": statusPending,
	"in-progress": statusPending,
	"started":     statusPending,

	"completed": statusCompleted,
	"complete":  statusCompleted,
	"done":      statusCompleted,
	"success":   statusCompleted,
	"succeeded": statusCompleted,
	"finished":  statusCompleted,

	"failed":  statusFailed,
	"error":   statusFailed,
	"failure": statusFailed,
}

func classify(status string) statusClass {
	return statusSynonyms[strings.ToLower(strings.TrimSpace(status))]
}
