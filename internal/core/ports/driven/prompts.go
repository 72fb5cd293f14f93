package driven

// Prompt names understood by PromptStore.
const (
	// PromptAnswerInstruction is the grounding instruction placed ahead of
	// retrieved contexts when answering a question.
	PromptAnswerInstruction = "answer_instruction"

	// PromptNoContext is returned as the answer text when retrieval finds nothing.
	PromptNoContext = "no_context"
)

// PromptStore provides user-editable prompt text.
type PromptStore interface {
	// Load returns the prompt for name, falling back to a built-in default.
	Load(name string) (string, error)
}
