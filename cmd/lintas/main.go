package main

import (
	"os"

	"github.com/prasetya/lintas/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
