// Package agent implements component G, the conversational agent: the
// per-turn orchestration spec.md §4.G describes over components A-F, and
// the Agent API surface spec.md §6 lists (chat, chat_stream,
// generate_chapter, list_generations).
package agent

import (
	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/intent"
)

// GeneratedChapter is the chat reply's optional generation payload (spec.md
// §6: "generated?: {chapter_number, content, word_count}").
type GeneratedChapter struct {
	ChapterNumber int
	Content       string
	WordCount     int
}

// Reply is chat's return shape (spec.md §6's `chat` contract).
type Reply struct {
	SessionID   string
	Text        string
	Generated   *GeneratedChapter
	Consistency *consistency.Report
	Intent      intent.Result
}

// StreamEventType is the closed set of chat_stream event kinds (spec.md §6:
// "type ∈ 'token','artifact','consistency','done','error'").
type StreamEventType string

const (
	EventToken       StreamEventType = "token"
	EventArtifact    StreamEventType = "artifact"
	EventConsistency StreamEventType = "consistency"
	EventDone        StreamEventType = "done"
	EventError       StreamEventType = "error"
)

// StreamEvent is one increment of a chat_stream sequence.
type StreamEvent struct {
	Type    StreamEventType
	Token   string
	Payload *Reply
	Err     error
}

// Config carries the creation-decision thresholds spec.md §6's configuration
// table defines. decide reads CompletionThreshold only; ConsistencyThreshold
// is carried but no decision path consults it.
type Config struct {
	CompletionThreshold  float64
	ConsistencyThreshold float64
	DefaultLocale        string
}

// GenerationRecord is list_generations' per-item shape (spec.md §6:
// "list_generations(project_id) -> records").
type GenerationRecord = generator.Chapter
