package command

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/jetconf-go/internal/cli/config"
	"github.com/yndnr/jetconf-go/internal/cli/connection"
	"github.com/yndnr/jetconf-go/internal/cli/output"
	"github.com/yndnr/jetconf-go/internal/infra/buildinfo"
)

const profileKey = "profile"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "jetconf-cli",
		Usage:   "RESTCONF client for jetconf-server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			RootCommand(),
			GetCommand(),
			PostCommand(),
			PutCommand(),
			DeleteCommand(),
			OpCommand(),
			ConfigCommand(),
			ShellCommand(),
		},
		Before: func(c *cli.Context) error {
			profile, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]any)
			}
			c.App.Metadata[profileKey] = profile
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI profile path",
			EnvVars: []string{"JETCONF_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Server address (e.g., https://localhost:8443)",
			EnvVars: []string{"JETCONF_SERVER"},
		},
		&cli.StringFlag{
			Name:  "api-root",
			Usage: "RESTCONF API root",
		},
		&cli.StringFlag{
			Name:    "ca",
			Usage:   "CA certificate file the server must chain to",
			EnvVars: []string{"JETCONF_CA_FILE"},
		},
		&cli.StringFlag{
			Name:    "cert",
			Usage:   "Client certificate file",
			EnvVars: []string{"JETCONF_CERT_FILE"},
		},
		&cli.StringFlag{
			Name:    "key",
			Usage:   "Client private key file",
			EnvVars: []string{"JETCONF_KEY_FILE"},
		},
		&cli.StringFlag{
			Name:  "server-name",
			Usage: "Name to verify in the server certificate",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: json, yaml, table, raw",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: 30 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Print response status and headers",
		},
	}
}

// GlobalFlags are the effective connection settings: flags over profile.
type GlobalFlags struct {
	Server     string
	APIRoot    string
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Output     string
	Timeout    time.Duration
	Verbose    bool
}

// ParseGlobalFlags merges the global flags over the loaded profile.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	profile, ok := c.App.Metadata[profileKey].(*config.CLIConfig)
	if !ok {
		profile = config.Default()
	}

	pick := func(flag, fallback string) string {
		if v := c.String(flag); v != "" {
			return v
		}
		return fallback
	}

	return &GlobalFlags{
		Server:     pick("server", profile.Server),
		APIRoot:    pick("api-root", profile.APIRoot),
		CAFile:     pick("ca", profile.TLS.CAFile),
		CertFile:   pick("cert", profile.TLS.CertFile),
		KeyFile:    pick("key", profile.TLS.KeyFile),
		ServerName: pick("server-name", profile.TLS.ServerName),
		Output:     pick("output", profile.Output),
		Timeout:    c.Duration("timeout"),
		Verbose:    c.Bool("verbose"),
	}
}

// newClient creates a client from the effective settings.
func newClient(c *cli.Context) (*connection.Client, *GlobalFlags, error) {
	flags := ParseGlobalFlags(c)
	if _, err := output.ParseFormat(flags.Output); err != nil {
		return nil, nil, err
	}

	client, err := connection.NewClient(connection.Options{
		Server:     flags.Server,
		APIRoot:    flags.APIRoot,
		CAFile:     flags.CAFile,
		CertFile:   flags.CertFile,
		KeyFile:    flags.KeyFile,
		ServerName: flags.ServerName,
		Timeout:    flags.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, flags, nil
}

// printResponse writes resp to the app writer in the selected format.
// Non-JSON bodies are written as they are.
func printResponse(c *cli.Context, flags *GlobalFlags, resp *connection.Response) error {
	w := c.App.Writer
	if flags.Verbose {
		fmt.Fprintf(w, "status: %d\n", resp.Status)
		for _, name := range []string{"Location", "Etag", "Last-Modified", "X-Request-Id"} {
			if v := resp.Header.Get(name); v != "" {
				fmt.Fprintf(w, "%s: %s\n", strings.ToLower(name), v)
			}
		}
	}
	if len(resp.Body) == 0 {
		return nil
	}

	format, _ := output.ParseFormat(flags.Output)
	if !json.Valid(resp.Body) {
		format = output.FormatRaw
	}
	return output.NewFormatter(format).Format(w, json.RawMessage(resp.Body))
}

// readBody returns the request body given as an argument: inline JSON,
// @file or "-" for standard input.
func readBody(c *cli.Context, arg string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case arg == "-":
		r := c.App.Reader
		if r == nil {
			r = os.Stdin
		}
		data, err = io.ReadAll(r)
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(arg[1:])
	default:
		data = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	return data, nil
}
