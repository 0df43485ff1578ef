package main

import (
	"log"

	"github.com/authkv/authkv"
	"github.com/urfave/cli/v2"
)

var verifyCommand = cli.Command{
	Action: verify,
	Name:   "verify",
	Usage:  "checks the integrity of all data reachable from the current root",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
	},
}

func verify(ctx *cli.Context) (err error) {
	dir := ctx.String(dbDirectoryFlag.Name)
	log.Printf("Opening store in %v ...", dir)
	db, err := authkv.Open(authkv.Config{Directory: dir})
	if err != nil {
		return err
	}
	defer closeLogged(db.Close, &err)

	log.Printf("Verifying tree of root %v ...", db.Root())
	if err := db.Verify(); err != nil {
		return err
	}
	log.Printf("Store is intact.")
	return nil
}
