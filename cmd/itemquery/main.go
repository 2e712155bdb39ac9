package main

import (
	"fmt"
	"os"

	"github.com/krew-solutions/itemquery/itemquery/logger"
)

func main() {
	err := newRootCommand().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
