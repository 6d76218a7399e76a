// Command fpindexd runs the HTTP front-end (spec §6) over a MultiIndex.
package main

import (
	"log"
	"os"

	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "fpindexd"
	app.HelpName = os.Args[0]
	app.Usage = "acoustic fingerprint search index"
	app.HideVersion = true
	app.Commands = []cli.Command{
		serverCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		log.Print(err)
		os.Exit(exitCodeFor(err))
	}
}
