// Command clickfit runs the Click Fit server and its maintenance tasks.
//
// Usage:
//
//	clickfit serve [--config clickfit.yaml]
//	clickfit images list
//	clickfit images delete <filename>...
//	clickfit images reconcile
//	clickfit users list
//	clickfit users create --email a@b.co --password secret
//	clickfit messages check [--dir ./locales]
//	clickfit version
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
