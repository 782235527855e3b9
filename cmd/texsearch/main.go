package main

import (
	"os"

	"github.com/dshills/texsearch/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{Version: version, BuildTime: buildTime}))
}
