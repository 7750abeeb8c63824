package main

import (
	"os"

	"github.com/twinlab/digital-twin/cmd/twin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
