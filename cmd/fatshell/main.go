package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/getuliobr/fat32-shell/shell"
	"github.com/getuliobr/fat32-shell/volume"
)

func main() {
	app := &cli.App{
		Name:      "fatshell",
		Usage:     "Interactive shell over a FAT32 disk image",
		ArgsUsage: "IMAGE",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatshell: %s", err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("fatshell: expected exactly one argument, the image path", 1)
	}

	sess, err := volume.Mount(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("fatshell: %s", err), 1)
	}
	defer sess.Close()

	shell.New(sess, os.Stdin, os.Stdout, os.Stderr).Run()
	return nil
}
