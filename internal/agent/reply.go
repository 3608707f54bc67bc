package agent

import (
	"context"
	"fmt"

	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/intent"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/session"
)

const conversationalSystemPrompt = `You are a collaborative long-form fiction writing assistant.
Reply briefly and in character as the assistant side of the conversation.
Never write chapter prose here — that only happens through the dedicated generation step.`

// conversationalReply produces the plain-chat branch of spec.md §4.G's
// turn algorithm (no generation): a short reply grounded in the session's
// recent turns. gen may be nil (e.g. in tests exercising only the
// generation path), in which case a static acknowledgement is returned.
func (a *Agent) conversationalReply(ctx context.Context, sess session.Session, message string) string {
	if a.gen == nil {
		return "Got it — let me know when you'd like me to write or continue a chapter."
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: conversationalSystemPrompt}}
	for _, t := range lastTurns(sess.Turns, 6) {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}

	resp, err := a.gen.Generate(ctx, llm.Request{Messages: messages, Temperature: 0.6, MaxTokens: 300})
	if err != nil {
		return "Noted — let me know when you'd like me to continue the story."
	}
	return resp.Content
}

// replyFromGeneration builds the chat reply for a turn that produced a
// chapter (spec.md §6: "generated?: {chapter_number, content, word_count}").
func replyFromGeneration(result generator.Result, ir intent.Result) Reply {
	text := fmt.Sprintf("Chapter %d is ready (%d words).", result.Chapter.ChapterNumber, result.Chapter.WordCount)
	if result.ConsistencyReport.HasError() {
		text += " A few consistency issues were flagged for your review."
	}
	rc := result.ConsistencyReport
	return Reply{
		Text: text,
		Generated: &GeneratedChapter{
			ChapterNumber: result.Chapter.ChapterNumber,
			Content:       result.Chapter.Content,
			WordCount:     result.Chapter.WordCount,
		},
		Consistency: &rc,
		Intent:      ir,
	}
}
