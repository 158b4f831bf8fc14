package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "runner-wrapper",
		Usage:                 "Run a playbook in the background and serve its progress over HTTP",
		EnableShellCompletion: true,
		Flags:                 flags(),
		Action:                runAction,
	}
}
