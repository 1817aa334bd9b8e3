package main

import (
	"fmt"
	"os"

	"github.com/AnyUserName/mediaproxy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mediaproxy:", err)
		os.Exit(1)
	}
}
