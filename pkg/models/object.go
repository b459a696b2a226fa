// Package models defines the API object types shared across the server:
// assistants, threads, messages and runs, plus the list/deletion envelopes
// used by the HTTP surface.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// Object type identifiers, returned in the "object" field of API responses.
const (
	ObjectAssistant = "assistant"
	ObjectThread    = "thread"
	ObjectMessage   = "thread.message"
	ObjectRun       = "thread.run"
	ObjectRunStep   = "thread.run.step"
	ObjectList      = "list"
)

// NewID generates a random object ID with the OpenAI-style prefix for the
// given object type ("asst_", "thread_", "msg_", "run_", "step_").
func NewID(object string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	switch object {
	case ObjectAssistant:
		return "asst_" + id
	case ObjectThread:
		return "thread_" + id
	case ObjectMessage:
		return "msg_" + id
	case ObjectRun:
		return "run_" + id
	case ObjectRunStep:
		return "step_" + id
	default:
		return id
	}
}

// DeletionStatus reports the outcome of a delete call.
type DeletionStatus struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// List is the cursor-paginated envelope wrapping query results.
type List[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	FirstID string `json:"first_id,omitempty"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more"`
}

// NewList wraps data in a list envelope, filling in the cursor ids.
func NewList[T any](data []T, id func(T) string, hasMore bool) List[T] {
	l := List[T]{Object: ObjectList, Data: data, HasMore: hasMore}
	if len(data) > 0 {
		l.FirstID = id(data[0])
		l.LastID = id(data[len(data)-1])
	}
	return l
}
