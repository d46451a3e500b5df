// Command foliod runs the folio daemon directly in the foreground, without
// the CLI's launch/control plumbing. Useful under service managers that want
// to own the process themselves.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"folio/internal/config"
	"folio/internal/daemonrun"
	"folio/internal/version"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "foliod: %v\n", err)
		os.Exit(1)
	}
}
