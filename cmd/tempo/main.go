// Command tempo runs fiber scenarios on a manual clock.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tempo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands print their own output; report what is left.
		fmt.Fprintln(os.Stderr, "tempo:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
