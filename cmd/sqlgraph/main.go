// Command sqlgraph answers natural-language questions against the databases
// listed in its configuration.
//
//	sqlgraph query --db hr "How many employees are active?"
//	sqlgraph chat --db hr
//	sqlgraph schema --db hr
//	sqlgraph databases
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
