package main

import (
	"os"

	"vidconv/cli"
)

func main() {
	os.Exit(cli.Execute())
}
