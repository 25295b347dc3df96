package main

import (
	"os"

	"github.com/kyleking/current/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	info := cmd.BuildInfo{Version: version, Commit: commit, Date: date}

	if err := cmd.Execute(info); err != nil {
		os.Exit(1)
	}
}
