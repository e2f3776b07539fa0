package main

import (
	"os"
	_ "time/tzdata"

	"taskflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
