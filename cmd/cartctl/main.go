package main

import (
	"fmt"
	"os"

	"example.com/cartsync/internal/config"
)

func main() {
	cfg, err := config.LoadSync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}
	a := newApp(cfg)
	err = a.rootCmd().Execute()
	if ferr := a.flushMetrics(); ferr != nil {
		fmt.Fprintln(os.Stderr, ferr)
	}
	if err != nil {
		os.Exit(1)
	}
}
