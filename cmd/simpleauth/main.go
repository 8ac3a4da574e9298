package main

import (
	"os"

	"github.com/porthorian/simpleauth/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
