package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/runner"
	"github.com/petasbytes/toolchat/memory"
	"github.com/petasbytes/toolchat/transcript"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	r, err := a.runner()
	if err != nil {
		return exitError(exitConfig, "%s", err)
	}

	persistPath := a.cfg.Conversation
	persisted, err := memory.LoadConversation(persistPath)
	if err != nil {
		a.logger.Warn("failed to load persisted conversation", "path", persistPath, "error", err)
	}

	// Set up graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	s := &session{chat: r, out: out, persisted: persisted, save: func(msgs []memory.Message) error {
		return memory.SaveConversation(persistPath, msgs)
	}}
	fmt.Fprintln(out, "Chat with Claude (/clear, /stats, /exit; Ctrl-C to quit)")
	s.loop(ctx, cmd.InOrStdin())

	fmt.Fprintln(out)
	printStats(out, a.collectStats(context.WithoutCancel(ctx)))
	return nil
}

// chatter is the part of *runner.Runner the REPL needs.
type chatter interface {
	Chat(ctx context.Context, tr *transcript.Transcript) (string, metrics.Usage)
}

// session is one REPL run over a persisted text-only conversation.
type session struct {
	chat      chatter
	out       io.Writer
	persisted []memory.Message
	save      func([]memory.Message) error
}

func (s *session) loop(ctx context.Context, in io.Reader) {
	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "\u001b[94mYou\u001b[0m: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return
		case line, ok = <-inputCh:
			if !ok {
				return
			}
		}
		if !s.handle(ctx, strings.TrimSpace(line)) {
			return
		}
	}
}

// handle processes one input line and reports whether the loop continues.
func (s *session) handle(ctx context.Context, line string) bool {
	switch line {
	case "":
		return true
	case "/exit", "/quit":
		return false
	case "/clear":
		s.persisted = nil
		s.persist()
		fmt.Fprintln(s.out, "Conversation cleared.")
		return true
	case "/stats":
		printUsage(s.out, "Conversation", memory.TotalUsage(s.persisted))
		return true
	}

	s.persisted = append(s.persisted, memory.Message{Role: "user", Text: line})
	text, usage := s.chat.Chat(ctx, memory.Transcript(s.persisted))
	if errors.Is(ctx.Err(), context.Canceled) {
		return false
	}

	fmt.Fprintf(s.out, "\u001b[93mClaude\u001b[0m: %s\n", text)
	reply := memory.Message{Role: "assistant", Text: text}
	if !usage.IsZero() {
		u := usage
		reply.Usage = &u
		printUsage(s.out, "This request", usage)
	}
	s.persisted = append(s.persisted, reply)
	s.persist()
	return true
}

func (s *session) persist() {
	if s.save == nil {
		return
	}
	if err := s.save(s.persisted); err != nil {
		fmt.Fprintf(s.out, "warning: failed to save conversation: %v\n", err)
	}
}

var _ chatter = (*runner.Runner)(nil)
