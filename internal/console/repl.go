// Package console runs the interactive question loop on plain stdin/stdout.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"speechqa/internal/domain"
	"speechqa/internal/logger"
)

// REPL reads questions line by line and prints one answer per question.
type REPL struct {
	asker domain.Asker
	in    *bufio.Reader
	out   io.Writer
	title string
}

func NewREPL(asker domain.Asker, in io.Reader, out io.Writer, title string) *REPL {
	return &REPL{asker: asker, in: bufio.NewReader(in), out: out, title: title}
}

// IsExit reports whether input is one of the exit sentinels.
func IsExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Run loops until an exit sentinel or end of input. A failed question is
// reported and the loop continues; only I/O errors on the console end it.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "\n=== %s ===\n", r.title)
	fmt.Fprintln(r.out, "Type a question related to the speech.")
	fmt.Fprintln(r.out, "Enter 'exit' to close.")
	fmt.Fprintln(r.out)

	for {
		fmt.Fprint(r.out, "Question: ")
		line, err := r.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		question := strings.TrimSpace(line)
		if IsExit(question) || (eof && question == "") {
			if eof && question == "" {
				fmt.Fprintln(r.out)
			}
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}

		r.ask(ctx, question)
		if eof {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
	}
}

func (r *REPL) ask(ctx context.Context, question string) {
	answer, err := r.asker.Invoke(ctx, question)
	if err != nil {
		logger.Debug("question %q failed: %v", question, err)
		fmt.Fprintln(r.out, "Error:", err)
		return
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "--- Answer ---")
	fmt.Fprintln(r.out, answer)
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out)
}
