package main

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/authkv/authkv"
	"github.com/urfave/cli/v2"
)

var runCommand = cli.Command{
	Action: run,
	Name:   "run",
	Usage:  "runs concurrent clients issuing set operations against one store",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&numClientsFlag,
		&numOpsFlag,
		&valueSizeFlag,
	},
}

func run(ctx *cli.Context) (err error) {
	dir := ctx.String(dbDirectoryFlag.Name)
	numClients := ctx.Int(numClientsFlag.Name)
	numOps := ctx.Int(numOpsFlag.Name)
	valueSize := ctx.Int(valueSizeFlag.Name)

	log.Printf("Opening store in %v ...", dir)
	db, err := authkv.Open(authkv.Config{Directory: dir})
	if err != nil {
		return err
	}
	defer closeLogged(db.Close, &err)

	log.Printf("Running %d clients with %d set operations each ...", numClients, numOps)
	var committed atomic.Int64
	var wg sync.WaitGroup
	errs := make([]error, numClients)
	start := time.Now()
	for client := 0; client < numClients; client++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			value := make([]byte, valueSize)
			for i := 0; i < numOps; i++ {
				key := []byte(fmt.Sprintf("client-%d/key-%d", client, i))
				copy(value, key)
				if _, setErr := db.Set(key, value); setErr != nil {
					errs[client] = fmt.Errorf("client %d failed after %d commits: %w", client, i, setErr)
					return
				}
				committed.Add(1)
			}
		}(client)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for _, clientErr := range errs {
		if clientErr != nil {
			return clientErr
		}
	}

	total := committed.Load()
	log.Printf("Committed %d set operations in %v (%.0f commits/s)", total, elapsed, float64(total)/elapsed.Seconds())
	log.Printf("Root: %v", db.Root())

	stats, err := db.Stats()
	if err != nil {
		return err
	}
	log.Printf("Nodes: %d, size on disk: %d bytes", stats.NodeCount, stats.SizeOnDisk)
	return nil
}
