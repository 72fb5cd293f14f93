package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/folio/internal/core/domain"
)

var (
	askTopK    int
	askPersona []string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from your documents",
	Long: `Retrieves the passages most relevant to the question and, when an LLM
provider is configured, composes an answer citing them as [file p.N].
Without a provider the passages are printed on their own.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 6, "number of passages to retrieve")
	askCmd.Flags().StringArrayVar(&askPersona, "persona", nil, "style statement placed before the instructions (repeatable)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := requireService("answer", answerService != nil); err != nil {
		return err
	}

	answer, err := answerService.Ask(commandContext(cmd), domain.AskRequest{
		Question: args[0],
		TopK:     askTopK,
		Persona:  askPersona,
	})
	if err != nil && (answer == nil || !errors.Is(err, domain.ErrGeneration)) {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		if jsonErr := printJSON(cmd, answer); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	switch answer.Status {
	case domain.AnswerAnswered:
		cmd.Println(answer.Text)
	case domain.AnswerFailed:
		cmd.Println(warningStyle.Render("Generation failed; showing retrieved passages."))
	default:
		cmd.Println(mutedStyle.Render(answer.Text))
	}

	if len(answer.Contexts) > 0 {
		cmd.Println()
		cmd.Println(heading("Sources:"))
		for i, c := range answer.Contexts {
			cmd.Printf("  [%d] %s p.%d (%s)\n", i+1, c.Document.Filename, c.Page, score(c.Score))
			if answer.Status != domain.AnswerAnswered {
				cmd.Println(snippetStyle.Render(c.Snippet))
			}
		}
	}

	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	return nil
}
