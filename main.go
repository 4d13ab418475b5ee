package main

import (
	"fmt"
	"os"

	"github.com/ragdesk/ragdesk/cmd/root"
)

func main() {
	if err := root.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
