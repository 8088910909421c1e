package main

import (
	"fmt"
	"os"

	"github.com/tomlm/portapty/cmd/portapty/command"
)

func main() {
	if err := command.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
