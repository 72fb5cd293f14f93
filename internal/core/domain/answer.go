package domain

// AnswerStatus discriminates the outcome of a question.
type AnswerStatus string

// Answer outcomes.
const (
	// AnswerAnswered carries generated text grounded in the contexts.
	AnswerAnswered AnswerStatus = "answered"

	// AnswerNotConfigured means no usable generation provider exists.
	// Retrieved contexts are still returned.
	AnswerNotConfigured AnswerStatus = "not_configured"

	// AnswerNoContext means retrieval found nothing to ground an answer in.
	AnswerNoContext AnswerStatus = "no_context"

	// AnswerFailed means the provider failed while a credential was present.
	AnswerFailed AnswerStatus = "failed"
)

// Role names for conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message of a conversation.
type Turn struct {
	// Role is "user" or "assistant". Other roles are dropped.
	Role string

	// Content is the message text.
	Content string
}

// AskRequest is a question posed against the indexed corpus.
type AskRequest struct {
	Question string
	TopK     int

	// Persona is a list of style or behaviour statements placed ahead of
	// the grounding instruction.
	Persona []string

	// History holds prior turns, oldest first.
	History []Turn
}

// Answer is the discriminated result of AskRequest.
type Answer struct {
	Status AnswerStatus

	// Text is the generated answer, or an explanatory message for
	// non-answered statuses.
	Text string

	// Contexts are the retrieved chunks the answer was grounded on.
	Contexts []SearchResult
}

// NotConfigured reports whether generation was skipped for lack of a provider.
func (a *Answer) NotConfigured() bool {
	return a.Status == AnswerNotConfigured
}
