package main

import (
	"fmt"
	"os"

	"github.com/rzpsarthak13/unistore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
