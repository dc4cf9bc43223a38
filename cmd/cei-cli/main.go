package main

import (
	"cei-crawler/cmd/cei-cli/commands"
	"cei-crawler/lib/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()
	commands.ExecuteContext(ctx)
}
