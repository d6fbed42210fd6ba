package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Exec runs one command line, already split into words. The first word is
// a resolved command name.
type Exec func(ctx context.Context, args []string) error

// Options configures a REPL.
type Options struct {
	// Prompt is printed before each line. Defaults to "jetconf> ".
	Prompt string
	// Input and Output default to standard input and output.
	Input  io.Reader
	Output io.Writer
	// Commands are the names Exec accepts.
	Commands []string
	// HistoryFile persists history between runs. Empty disables it.
	HistoryFile string
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	exec      Exec
	prompt    string
	input     io.Reader
	output    io.Writer
	completer *Completer
	history   *History
}

// New creates a REPL that hands each line to exec.
func New(exec Exec, opts Options) *REPL {
	r := &REPL{
		exec:      exec,
		prompt:    opts.Prompt,
		input:     opts.Input,
		output:    opts.Output,
		completer: NewCompleter(opts.Commands),
		history:   NewHistory(opts.HistoryFile),
	}
	if r.prompt == "" {
		r.prompt = "jetconf> "
	}
	if r.input == nil {
		r.input = os.Stdin
	}
	if r.output == nil {
		r.output = os.Stdout
	}
	return r
}

// Run reads lines until exit, EOF or ctx is done. Command errors are
// printed and do not stop the loop.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		fmt.Fprintf(r.output, "warning: load history: %v\n", err)
	}
	defer func() {
		if err := r.history.Save(); err != nil {
			fmt.Fprintf(r.output, "warning: save history: %v\n", err)
		}
	}()

	reader := bufio.NewReader(r.input)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(r.output, r.prompt)

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line != "" {
			r.history.Add(line)
			if done := r.handle(ctx, line); done {
				return nil
			}
		}

		if eof {
			fmt.Fprintln(r.output)
			return nil
		}
	}
}

// handle runs one line and reports whether the loop should end.
func (r *REPL) handle(ctx context.Context, line string) bool {
	args, err := SplitArgs(line)
	if err != nil {
		fmt.Fprintf(r.output, "error: %v\n", err)
		return false
	}

	switch args[0] {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintf(r.output, "commands: %s\n", strings.Join(r.completer.Commands(), ", "))
		fmt.Fprintln(r.output, "built-ins: help, history, exit")
		return false
	case "history":
		for i, e := range r.history.Entries() {
			fmt.Fprintf(r.output, "%4d  %s\n", i+1, e)
		}
		return false
	}

	name, err := r.completer.Resolve(args[0])
	if err != nil {
		fmt.Fprintf(r.output, "error: %v\n", err)
		return false
	}
	args[0] = name

	if err := r.exec(ctx, args); err != nil {
		fmt.Fprintf(r.output, "error: %v\n", err)
	}
	return false
}
