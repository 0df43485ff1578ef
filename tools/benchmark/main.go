package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

// A small CLI for exercising and inspecting a store directory. The run
// command drives the store with concurrent clients and reports commit
// throughput; info and verify inspect an existing directory.
func main() {
	app := &cli.App{
		Name:  "benchmark",
		Usage: "benchmarks and inspects an authenticated key-value store",
		Commands: []*cli.Command{
			&runCommand,
			&infoCommand,
			&verifyCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var (
	dbDirectoryFlag = cli.StringFlag{
		Name:     "dir",
		Usage:    "the targeted store directory",
		Required: true,
	}
	numClientsFlag = cli.IntFlag{
		Name:  "clients",
		Usage: "the number of concurrent clients",
		Value: 4,
	}
	numOpsFlag = cli.IntFlag{
		Name:  "ops",
		Usage: "the number of set operations per client",
		Value: 10_000,
	}
	valueSizeFlag = cli.IntFlag{
		Name:  "value-size",
		Usage: "the size of each written value in bytes",
		Value: 32,
	}
)

func closeLogged(close func() error, err *error) {
	if closeErr := close(); closeErr != nil {
		if *err == nil {
			*err = closeErr
		} else {
			log.Printf("failure closing store: %v", closeErr)
		}
	}
}
