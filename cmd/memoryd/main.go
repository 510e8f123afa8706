package main

import (
	"os"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
