package main

import (
	"vintage-mod-manager/cmd"

	_ "go.uber.org/automaxprocs/maxprocs"
)

func main() {
	// Settings and the logger are initialised by the root command, since the
	// log file lives in the configured directory.
	cmd.Execute()
}
