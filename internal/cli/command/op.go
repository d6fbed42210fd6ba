package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"
)

// OpCommand returns the op command.
func OpCommand() *cli.Command {
	return &cli.Command{
		Name:      "op",
		Usage:     "Invoke an operation",
		ArgsUsage: "<module:name> [input json|@file|-]",
		Description: "The input is wrapped as {\"<module>:input\": <input>}, e.g.\n" +
			`   jetconf-cli op jetconf:ping '{"message": "hi"}'`,
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("operation name is required")
			}
			if c.NArg() > 2 {
				return fmt.Errorf("too many arguments")
			}

			name := c.Args().First()
			module, _, ok := strings.Cut(name, ":")
			if !ok || module == "" || strings.Contains(name, "/") {
				return fmt.Errorf("operation name must be module:name, got %q", name)
			}

			body := []byte("{}")
			if c.NArg() == 2 {
				input, err := readBody(c, c.Args().Get(1))
				if err != nil {
					return err
				}
				body, err = json.Marshal(map[string]json.RawMessage{module + ":input": input})
				if err != nil {
					return err
				}
			}

			return request(c, http.MethodPost, func(cl urlBuilder) string {
				return cl.OperationPath(name)
			}, body)
		},
	}
}
