// Command beanplan plans entity graph queries into SQL and runs them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/beanplan/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
