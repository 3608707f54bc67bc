package agent

import (
	"context"
	"time"

	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/intent"
	"github.com/yantianqi1/write-agent/internal/session"
)

// Chat implements spec.md §4.G's full per-turn pipeline: append the user
// turn, classify intent, extract+complete+conflict-check settings, decide
// whether to generate, run generation or produce a conversational reply,
// append the assistant turn, and commit the whole turn atomically (spec.md
// §5: "commit atomically, all-or-nothing"). sessionID == "" starts a new
// session bound to projectID.
func (a *Agent) Chat(ctx context.Context, sessionID, projectID, message string) (Reply, error) {
	start := timeNow()
	var reply Reply
	var classified intent.Result
	var finalSession session.Session

	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		sid := sessionID
		if sid == "" {
			created, err := a.sessions.Create(ctx, projectID)
			if err != nil {
				return err
			}
			sid = created.ID
		}

		updated, err := a.sessions.WithLock(ctx, sid, func(ctx context.Context, sess session.Session) (session.Session, error) {
			sess, err := a.sessions.AppendTurn(ctx, sess, session.Turn{Role: session.RoleUser, Text: message, Timestamp: timeNow()})
			if err != nil {
				return sess, err
			}

			result, err := a.classifier.Classify(ctx, message)
			if err != nil {
				return sess, err
			}
			classified = result

			var settingsReport consistency.Report
			blocked := false
			if result.Intent != intent.Query {
				nextBundle, report, block, err := a.applySettings(ctx, sess.DerivedSettings, message)
				if err != nil {
					return sess, err
				}
				a.syncBundleToMemory(ctx, sess.ProjectID, sess.DerivedSettings, nextBundle)
				settingsReport = report
				blocked = block
				sess.DerivedSettings = nextBundle
			}

			generate, genReq, err := a.decide(ctx, sess, result, message, blocked)
			if err != nil {
				return sess, err
			}

			switch {
			case generate:
				genResult, err := a.runGeneration(ctx, genReq, sess.DerivedSettings)
				if err != nil {
					return sess, err
				}
				reply = replyFromGeneration(genResult, result)
			case blocked:
				rc := settingsReport
				reply = Reply{Text: clarificationMessage(settingsReport), Consistency: &rc, Intent: result}
			default:
				reply = Reply{Text: a.conversationalReply(ctx, sess, message), Intent: result}
				if len(settingsReport.Issues) > 0 {
					rc := settingsReport
					reply.Consistency = &rc
				}
			}

			return a.sessions.AppendTurn(ctx, sess, session.Turn{Role: session.RoleAssistant, Text: reply.Text, Timestamp: timeNow()})
		})
		if err != nil {
			return err
		}
		finalSession = updated
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	reply.SessionID = finalSession.ID
	if a.metrics != nil {
		a.metrics.RecordAgentTurn(string(classified.Intent), time.Since(start).Seconds())
	}
	return reply, nil
}
