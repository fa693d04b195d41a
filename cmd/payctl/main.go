package main

import (
	"os"

	"github.com/upb/payment-control-plane/cmd/payctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
