package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/service"
	"github.com/spf13/cobra"
)

var askConversation string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream a grounded answer",
	Long: `Ask a question and stream an answer grounded in your memories and
ingested documents.

Without --conversation a new conversation is started; its ID is printed so
follow-up questions can continue it.

Examples:
  groundwork ask "When do we deploy?"
  groundwork ask "And rollbacks?" -c 01HZX3...`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue an existing conversation")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := args[0]

	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	convID := askConversation
	if convID == "" {
		conv, err := b.CreateConversation(ctx, conversationTitle(question))
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		convID = conv.ID
	}

	w := &answerWriter{out: cmd.OutOrStdout()}
	res, err := b.StreamTurn(ctx, convID, question, w.token)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	w.finish(res.Text)

	printTurnFooter(cmd.ErrOrStderr(), convID, res)
	return nil
}

// conversationTitle derives a title from the first question.
func conversationTitle(question string) string {
	title := strings.TrimSpace(question)
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60]) + "..."
	}
	return title
}

func printTurnFooter(out io.Writer, convID string, res *service.TurnResult) {
	fmt.Fprintf(out, "\nconversation: %s\n", convID)
	fmt.Fprintf(out, "grounded in %d memories, %d chunks (%s citations, tiers memory=%s knowledge=%s)\n",
		len(res.MemoryIDs), len(res.ChunkIDs), res.CitationMode, res.Tiers["memory"], res.Tiers["knowledge"])
}

// answerWriter prints answer tokens as they arrive. It holds back only text that
// could still be a trailing citation footer, plus trailing whitespace. finish
// prints whatever part of the visible answer is left.
type answerWriter struct {
	out     io.Writer
	pending string
	printed strings.Builder
}

func (w *answerWriter) token(tok string) error {
	w.pending += tok

	cut := len(w.pending)
	for i := 0; i < len(w.pending); i++ {
		if c := w.pending[i]; (c == '{' || c == '`') && footerPrefix(w.pending[i:]) {
			cut = i
			break
		}
	}
	flush := strings.TrimRight(w.pending[:cut], " \t\r\n")
	if flush == "" {
		return nil
	}
	if _, err := io.WriteString(w.out, flush); err != nil {
		return err
	}
	w.printed.WriteString(flush)
	w.pending = w.pending[len(flush):]
	return nil
}

func (w *answerWriter) finish(visible string) {
	printed := strings.TrimLeft(w.printed.String(), " \t\r\n")
	if rest, ok := strings.CutPrefix(visible, printed); ok {
		fmt.Fprint(w.out, rest)
	}
	fmt.Fprintln(w.out)
}

// footerPrefix reports whether s can still grow into one or more citation
// objects, bare or fenced, that end the answer.
func footerPrefix(s string) bool {
	for s = trimSpace(s); s != ""; s = trimSpace(s) {
		switch {
		case s[0] == '{':
			end := strings.IndexByte(s, '}')
			if end < 0 {
				return !strings.ContainsRune(s[1:], '{')
			}
			if strings.ContainsRune(s[1:end], '{') {
				return false
			}
			s = s[end+1:]

		case strings.HasPrefix(s, "```"):
			body := s[3:]
			end := strings.Index(body, "```")
			if end < 0 {
				return fenceBody(body, false)
			}
			if !fenceBody(body[:end], true) {
				return false
			}
			s = body[end+3:]

		default:
			// A partial opening fence.
			return s == "`" || s == "``"
		}
	}
	return true
}

// fenceBody reports whether the body of a fence holds, or can still grow into, a citation object.
func fenceBody(body string, closed bool) bool {
	lang := body
	if i := strings.IndexAny(body, " \t\r\n{"); i >= 0 {
		lang = body[:i]
	}
	lang = strings.ToLower(lang)
	if !strings.HasPrefix("json", lang) || closed && lang != "" && lang != "json" {
		return false
	}
	rest := trimSpace(body[len(lang):])
	if rest == "" {
		return !closed
	}
	if rest[0] != '{' || strings.ContainsRune(rest[1:], '{') {
		return false
	}
	if end := strings.IndexByte(rest, '}'); end >= 0 {
		return strings.Trim(rest[end+1:], " \t\r\n`") == ""
	}
	return true
}

func trimSpace(s string) string {
	return strings.TrimLeft(s, " \t\r\n")
}
