package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gws-pilot/internal/conversation"
	"gws-pilot/internal/pilot"
	"gws-pilot/internal/session"
)

const chatSessionID = "cli:local"

// lineReader yields one user line per call and io.EOF when input ends.
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct{ s *bufio.Scanner }

func (r scannerReader) ReadLine() (string, error) {
	if r.s.Scan() {
		return r.s.Text(), nil
	}
	if err := r.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func newChatCmd(cc *cliContext) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cc.logger
			if !verbose {
				logger = logger.Level(zerolog.WarnLevel)
			}
			app, err := pilot.New(cmd.Context(), cc.cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return runREPL(cmd.Context(), app.Sessions, scannerReader{bufio.NewScanner(os.Stdin)}, cmd.OutOrStdout())
			}
			state, err := term.MakeRaw(fd)
			if err != nil {
				return errors.Wrap(err, "failed to enter raw mode")
			}
			defer term.Restore(fd, state)

			t := term.NewTerminal(struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout}, "you> ")
			return runREPL(cmd.Context(), app.Sessions, t, t)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show info logs while chatting")
	return cmd
}

// runREPL drives the terminal conversation until EOF or /quit. /reset starts
// over from the greeting.
func runREPL(ctx context.Context, sessions *session.Manager, in lineReader, out io.Writer) error {
	sess := sessions.GetOrCreate(chatSessionID)
	printBot(out, sess.Store.Messages()[0].Text)
	fmt.Fprintln(out, "(type /reset to start over, /quit to leave)")

	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read input")
		}

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/reset":
			sessions.Reset(chatSessionID)
			sess = sessions.GetOrCreate(chatSessionID)
			printBot(out, sess.Store.Messages()[0].Text)
			continue
		}

		reply, err := sess.Store.SubmitUserText(ctx, line)
		if errors.Is(err, conversation.ErrEmptyInput) {
			continue
		}
		if err != nil {
			return err
		}
		printBot(out, reply.Text)
	}
}

func printBot(out io.Writer, text string) {
	fmt.Fprintf(out, "pilot> %s\n", text)
}
