package main

import (
	"os"

	"vizmigrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
