package main

import (
	"os"

	"github.com/toolchest/favikit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
