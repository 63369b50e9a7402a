package main

import (
	"os"

	"github.com/aerosense-dev/aerosense/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
