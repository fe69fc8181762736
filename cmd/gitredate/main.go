package main

import (
	"fmt"
	"os"

	"github.com/gitredate/gitredate/internal/cli"
)

func main() {
	cfg, err := cli.ParseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInvalidInvocation)
	}
	os.Exit(cli.Run(cfg))
}
