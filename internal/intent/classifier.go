package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/llm"
)

// Generator is the narrow slice of llm.Gateway the LLM fallback stage uses.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

// pattern associates a compiled cue with the score it contributes toward a
// Kind when it matches the turn text.
type pattern struct {
	re    *regexp.Regexp
	score float64
}

var rules = map[Kind][]pattern{
	CreateStory: {
		{regexp.MustCompile(`(?i)\b(i want|let'?s write|help me write|create)\b.*\b(novel|story|book)\b`), 0.9},
		{regexp.MustCompile(`(?i)\bnew (novel|story)\b`), 0.85},
		{regexp.MustCompile(`(?i)\bstart (a|writing a) (novel|story)\b`), 0.85},
	},
	ModifySetting: {
		{regexp.MustCompile(`(?i)\b(change|update|rename|make)\b.*\b(character|protagonist|world|genre|setting|location|era)\b`), 0.85},
		{regexp.MustCompile(`(?i)\bactually,?\s+(he|she|they|it)\s+(is|was)\b`), 0.7},
		{regexp.MustCompile(`(?i)\bset the (genre|era|tone) to\b`), 0.85},
	},
	ModifyContent: {
		{regexp.MustCompile(`(?i)\b(rewrite|edit|fix|revise)\b.*\bchapter\b`), 0.9},
		{regexp.MustCompile(`(?i)\bchapter\s*\d+\b.*\b(rewrite|redo|fix|change)\b`), 0.8},
	},
	GenerateContent: {
		{regexp.MustCompile(`(?i)\b(write|generate)\b.*\bchapter\b`), 0.9},
		{regexp.MustCompile(`(?i)\bstart writing\b`), 0.7},
		{regexp.MustCompile(`(?i)\boutline\b.*\bchapters?\b`), 0.75},
	},
	ContinueContent: {
		{regexp.MustCompile(`(?i)\b(continue|keep going|next chapter|what happens next)\b`), 0.9},
		{regexp.MustCompile(`(?i)\bmore\b`), 0.4},
	},
	Query: {
		{regexp.MustCompile(`(?i)^\s*(what|who|where|when|why|how)\b`), 0.75},
		{regexp.MustCompile(`\?\s*$`), 0.55},
	},
}

var generationCueRe = regexp.MustCompile(`(?i)\b(write|generate|continue)\b`)

// HasGenerationCue reports whether turn contains an explicit write/continue
// verb, one of the creation-decision inputs in spec.md §4.G step 4.
func HasGenerationCue(turn string) bool {
	return generationCueRe.MatchString(turn)
}

// Classifier is the two-stage recognizer of spec.md §4.C.
type Classifier struct {
	gen Generator // optional; nil disables the LLM fallback stage
}

// New constructs a Classifier. gen may be nil, in which case low-confidence
// rule matches are returned as-is rather than escalated.
func New(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify is stateless between turns (spec.md §4.C): it considers only the
// text of this single turn.
func (c *Classifier) Classify(ctx context.Context, turn string) (Result, error) {
	candidate := ruleStage(turn)
	if candidate.Confidence >= fallbackThreshold || c.gen == nil {
		return candidate, nil
	}
	return c.llmStage(ctx, turn, candidate)
}

func ruleStage(turn string) Result {
	best := Result{Intent: Chat, Confidence: 0.3, Rationale: "no rule cue matched; default conversational"}
	for kind, patterns := range rules {
		for _, p := range patterns {
			if !p.re.MatchString(turn) {
				continue
			}
			if p.score > best.Confidence {
				best = Result{
					Intent:     kind,
					Confidence: p.score,
					Rationale:  fmt.Sprintf("matched rule cue for %s", kind),
				}
			}
		}
	}
	return best
}

const classificationSystemPrompt = `You are a strict intent classifier for a fiction-writing assistant.
Reply with exactly one line in the form: LABEL | one short reason.
LABEL must be exactly one of: CREATE_STORY, MODIFY_SETTING, MODIFY_CONTENT, QUERY, GENERATE_CONTENT, CONTINUE_CONTENT, CHAT.`

func (c *Classifier) llmStage(ctx context.Context, turn string, fallback Result) (Result, error) {
	resp, err := c.gen.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classificationSystemPrompt},
			{Role: llm.RoleUser, Content: turn},
		},
		Temperature: 0,
		MaxTokens:   40,
	})
	if err != nil {
		return Result{}, coreerr.Wrap(coreerr.ProviderError, err, "intent classification fallback")
	}

	label, rationale := parseLLMVerdict(resp.Content)
	kind, ok := isKnownKind(label)
	if !ok {
		// Unparseable or out-of-set reply: keep the rule stage's best guess
		// rather than fail the turn (spec.md §4.D's "never block" ethos
		// applies equally here — classification failure must not abort).
		return fallback, nil
	}
	return Result{Intent: kind, Confidence: 0.75, Rationale: rationale}, nil
}

func parseLLMVerdict(raw string) (label, rationale string) {
	line := strings.TrimSpace(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	parts := strings.SplitN(line, "|", 2)
	label = strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		rationale = strings.TrimSpace(parts[1])
	}
	return label, rationale
}
