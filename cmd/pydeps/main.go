package main

import (
	"os"

	"pydeps/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
