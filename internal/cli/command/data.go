package command

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"
)

// RootCommand returns the root command.
func RootCommand() *cli.Command {
	return &cli.Command{
		Name:  "root",
		Usage: "Show the RESTCONF API root resource",
		Action: func(c *cli.Context) error {
			return request(c, http.MethodGet, func(cl urlBuilder) string {
				return cl.APIRoot()
			}, nil)
		},
	}
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Read a data resource",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Limit the depth of the returned subtree (0 = unbounded)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("too many arguments")
			}
			depth := c.Int("depth")
			if depth < 0 {
				return fmt.Errorf("depth must not be negative")
			}
			return request(c, http.MethodGet, func(cl urlBuilder) string {
				p := cl.DataPath(c.Args().First())
				if depth > 0 {
					p += "?" + url.Values{"depth": {strconv.Itoa(depth)}}.Encode()
				}
				return p
			}, nil)
		},
	}
}

// PostCommand returns the post command.
func PostCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Create a child resource under path",
		ArgsUsage: "<path> <json|@file|->",
		Description: "The body must hold exactly one member, the new child, e.g.\n" +
			`   jetconf-cli post ex:top '{"ex:item": {"name": "a"}}'`,
		Action: func(c *cli.Context) error {
			return writeData(c, http.MethodPost, true)
		},
	}
}

// PutCommand returns the put command.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Create or replace the resource at path",
		ArgsUsage: "<path> [json|@file|-]",
		Action: func(c *cli.Context) error {
			return writeData(c, http.MethodPut, false)
		},
	}
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete the resource at path and its subtree",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("path is required")
			}
			return request(c, http.MethodDelete, func(cl urlBuilder) string {
				return cl.DataPath(c.Args().First())
			}, nil)
		},
	}
}

// writeData handles put and post. POST requires a body.
func writeData(c *cli.Context, method string, bodyRequired bool) error {
	if c.NArg() < 1 {
		return fmt.Errorf("path is required")
	}
	if c.NArg() > 2 {
		return fmt.Errorf("too many arguments")
	}

	var body []byte
	if c.NArg() == 2 {
		b, err := readBody(c, c.Args().Get(1))
		if err != nil {
			return err
		}
		body = b
	} else if bodyRequired {
		return fmt.Errorf("request body is required")
	} else {
		body = []byte{}
	}

	return request(c, method, func(cl urlBuilder) string {
		return cl.DataPath(c.Args().First())
	}, body)
}

// urlBuilder is the part of the client used to build request paths.
type urlBuilder interface {
	APIRoot() string
	DataPath(resource string) string
	OperationPath(name string) string
}

// request sends one request and prints the response.
func request(c *cli.Context, method string, target func(urlBuilder) string, body []byte) error {
	client, flags, err := newClient(c)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(c.Context, flags.Timeout)
	defer cancel()

	resp, err := client.Do(ctx, method, target(client), body)
	if err != nil {
		return err
	}

	if resp.Status == http.StatusCreated && !flags.Verbose {
		fmt.Fprintf(c.App.Writer, "created %s\n", resp.Header.Get("Location"))
		return nil
	}
	return printResponse(c, flags, resp)
}
