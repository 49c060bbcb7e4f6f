package main

import (
	"os"

	"github.com/shelfdrop/shelfdrop-cli/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
