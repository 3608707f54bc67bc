// Package intent implements component C: a stateless, two-stage classifier
// that labels a single user turn with one of a closed set of intents.
package intent

// Kind is the closed label set spec.md §4.C defines.
type Kind string

const (
	CreateStory     Kind = "CREATE_STORY"
	ModifySetting   Kind = "MODIFY_SETTING"
	ModifyContent   Kind = "MODIFY_CONTENT"
	Query           Kind = "QUERY"
	GenerateContent Kind = "GENERATE_CONTENT"
	ContinueContent Kind = "CONTINUE_CONTENT"
	Chat            Kind = "CHAT"
)

// allKinds is the closed set used to validate an LLM fallback's reply and to
// build the classification prompt's label list.
var allKinds = []Kind{CreateStory, ModifySetting, ModifyContent, Query, GenerateContent, ContinueContent, Chat}

func isKnownKind(s string) (Kind, bool) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Result is spec.md §4.C's output: `{ intent, confidence, rationale (short) }`.
type Result struct {
	Intent     Kind
	Confidence float64
	Rationale  string
}

// fallbackThreshold is the confidence floor below which the rule stage's
// candidate is escalated to the gateway (spec.md §4.C: "if confidence < 0.6").
const fallbackThreshold = 0.6
