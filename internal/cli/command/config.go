package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/jetconf-go/internal/cli/config"
	"github.com/yndnr/jetconf-go/internal/cli/output"
)

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the CLI profile",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective settings",
				Action: func(c *cli.Context) error {
					flags := ParseGlobalFlags(c)
					format, err := output.ParseFormat(flags.Output)
					if err != nil {
						return err
					}
					if format == output.FormatRaw {
						format = output.FormatYAML
					}
					return output.NewFormatter(format).Format(c.App.Writer, map[string]any{
						"server":      flags.Server,
						"api_root":    flags.APIRoot,
						"ca_file":     flags.CAFile,
						"cert_file":   flags.CertFile,
						"key_file":    flags.KeyFile,
						"server_name": flags.ServerName,
						"output":      flags.Output,
						"timeout":     flags.Timeout.String(),
					})
				},
			},
			{
				Name:  "init",
				Usage: "Write the effective settings to the profile file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing profile",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return fmt.Errorf("%s already exists (use --force to overwrite)", path)
					}

					flags := ParseGlobalFlags(c)
					profile := &config.CLIConfig{
						Server:  flags.Server,
						APIRoot: flags.APIRoot,
						Output:  flags.Output,
						TLS: config.TLSConfig{
							CAFile:     flags.CAFile,
							CertFile:   flags.CertFile,
							KeyFile:    flags.KeyFile,
							ServerName: flags.ServerName,
						},
					}
					if err := config.Save(profile, path); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
					return nil
				},
			},
		},
	}
}
