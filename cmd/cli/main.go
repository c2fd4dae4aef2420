package main

import (
	"os"

	"smart-secretary/internal/config"
)

func main() {
	if err := newRootCmd(config.LoadOptions{}).Execute(); err != nil {
		os.Exit(1)
	}
}
