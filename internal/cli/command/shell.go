package command

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/jetconf-go/internal/cli/repl"
)

// shellCommands are the commands available inside the shell.
var shellCommands = []string{"root", "get", "post", "put", "delete", "op", "config"}

// ShellCommand returns the shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive session",
		Description: "Each line runs one command with the global flags of the shell, e.g.\n" +
			`   jetconf> get --depth 1 ex:top`,
		Action: func(c *cli.Context) error {
			global := effectiveArgs(ParseGlobalFlags(c), c.String("config"))

			exec := func(ctx context.Context, args []string) error {
				sub := App()
				sub.Writer = c.App.Writer
				sub.ErrWriter = c.App.ErrWriter
				sub.Reader = strings.NewReader("")
				argv := append([]string{c.App.Name}, global...)
				return sub.RunContext(ctx, append(argv, args...))
			}

			r := repl.New(exec, repl.Options{
				Input:       c.App.Reader,
				Output:      c.App.Writer,
				Commands:    shellCommands,
				HistoryFile: filepath.Join(filepath.Dir(c.String("config")), "history"),
			})
			return r.Run(c.Context)
		},
	}
}

// effectiveArgs renders the effective settings back into global flags.
func effectiveArgs(flags *GlobalFlags, configPath string) []string {
	args := []string{
		"--config", configPath,
		"--server", flags.Server,
		"--api-root", flags.APIRoot,
		"--ca", flags.CAFile,
		"--cert", flags.CertFile,
		"--key", flags.KeyFile,
		"--server-name", flags.ServerName,
		"--output", flags.Output,
		"--timeout", flags.Timeout.String(),
	}
	if flags.Verbose {
		args = append(args, "--verbose")
	}
	return args
}
