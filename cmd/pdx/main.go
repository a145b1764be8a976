package main

import (
	"os"

	"github.com/bnema/primedictation-export/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
