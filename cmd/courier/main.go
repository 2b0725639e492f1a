package main

import (
	"os"

	"courier/cmd/courier/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
