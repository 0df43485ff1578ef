package main

import (
	"log"

	"github.com/authkv/authkv"
	"github.com/urfave/cli/v2"
)

var infoCommand = cli.Command{
	Action: info,
	Name:   "info",
	Usage:  "prints summary information about a store directory",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
	},
}

func info(ctx *cli.Context) (err error) {
	dir := ctx.String(dbDirectoryFlag.Name)
	log.Printf("Opening store in %v ...", dir)
	db, err := authkv.Open(authkv.Config{Directory: dir})
	if err != nil {
		return err
	}
	defer closeLogged(db.Close, &err)

	stats, err := db.Stats()
	if err != nil {
		return err
	}
	log.Printf("Root:         %v", stats.Root)
	log.Printf("Nodes:        %d", stats.NodeCount)
	log.Printf("Size on disk: %d bytes", stats.SizeOnDisk)
	return nil
}
