package domain

// SystemPrompt is prepended to every completion request. Callers cannot replace it.
const SystemPrompt = "你是一个专业的数学老师，擅长解答各种数学问题。请详细解释解题思路和步骤。"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of the conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EventKind enumerates the states a streamed answer moves through:
//
//	start → chunk* → (done | error)
type EventKind string

const (
	EventStart EventKind = "start"
	EventChunk EventKind = "chunk"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// StreamEvent is one element of a streamed answer. Content is set only for
// EventChunk; Message and Failure only for EventError.
type StreamEvent struct {
	Kind    EventKind
	Content string
	Message string
	Failure *UpstreamError
}

// Terminal reports whether no further events may follow e.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
