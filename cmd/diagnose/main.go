package main

import (
	"os"

	"github.com/Harshitk-cp/diagnostician/cmd/diagnose/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
