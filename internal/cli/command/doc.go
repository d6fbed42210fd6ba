// Package command defines the jetconf-cli commands.
//
// It uses urfave/cli/v2. Global flags override the profile loaded from
// --config (default ~/.jetconf/cli.yaml).
package command
