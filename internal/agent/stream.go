package agent

import (
	"context"
	"strings"
)

// ChatStream runs the same per-turn pipeline Chat does — spec.md §4.F's
// chapter generation is not itself incremental (consistency checking and
// the memory writes that follow it need the full chapter text in hand), so
// true token-level streaming of a generated chapter would require
// threading partial content through Generate's post-generation steps for
// no externally visible benefit. Instead the finished reply text is
// word-chunked into EventToken events, exactly matching the event sequence
// spec.md §6 describes (token*, artifact?, consistency?, done) without
// duplicating generator.Service's generation logic.
func (a *Agent) ChatStream(ctx context.Context, sessionID, projectID, message string) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		reply, err := a.Chat(ctx, sessionID, projectID, message)
		if err != nil {
			select {
			case out <- StreamEvent{Type: EventError, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		for _, tok := range tokenize(reply.Text) {
			select {
			case out <- StreamEvent{Type: EventToken, Token: tok}:
			case <-ctx.Done():
				return
			}
		}

		if reply.Generated != nil {
			payload := reply
			select {
			case out <- StreamEvent{Type: EventArtifact, Payload: &payload}:
			case <-ctx.Done():
				return
			}
		}

		if reply.Consistency != nil {
			payload := reply
			select {
			case out <- StreamEvent{Type: EventConsistency, Payload: &payload}:
			case <-ctx.Done():
				return
			}
		}

		payload := reply
		select {
		case out <- StreamEvent{Type: EventDone, Payload: &payload}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// tokenize splits text into whitespace-delimited chunks, each carrying its
// trailing space so a consumer can concatenate tokens verbatim.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, len(fields))
	for i, f := range fields {
		if i < len(fields)-1 {
			out[i] = f + " "
		} else {
			out[i] = f
		}
	}
	return out
}
