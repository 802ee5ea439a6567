package main

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/tomek7667/stressd/internal/http"
	"github.com/tomek7667/stressd/internal/stress"
	"github.com/tomek7667/stressd/internal/sysfs"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:        "stressd",
		Description: "on-device resource stress and cpu frequency control daemon with a local http api",
		Usage:       "run the stress daemon",
		Version:     appVersion(),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				EnvVars: []string{"STRESSD_PORT", "PORT"},
				Value:   8765,
			},
			&cli.StringFlag{
				Name:    "sysfs-root",
				EnvVars: []string{"STRESSD_SYSFS_ROOT"},
				Value:   sysfs.DefaultRoot,
				Usage:   "cpu sysfs tree to read and write frequency controls under",
			},
			&cli.StringFlag{
				Name:    "disk-path",
				EnvVars: []string{"STRESSD_DISK_PATH"},
				Usage:   "default directory for disk stress files (defaults to the system temp dir)",
			},
		},
		CommandNotFound: func(c *cli.Context, command string) {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
			cli.ShowAppHelpAndExit(c, 1)
		},
		Action: func(c *cli.Context) error {
			fs := sysfs.New(c.String("sysfs-root"))
			coordinator := stress.NewCoordinator(fs)
			server := http.New(c.Int("port"), coordinator, fs, c.String("disk-path"))
			return server.Serve()
		},
		BashComplete: cli.ShowCompletions,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func appVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return "unknown"
	}

	version := bi.Main.Version
	var rev string
	var modified bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}

	if version != "" && version != "(devel)" {
		return version
	}
	if rev != "" {
		if modified {
			return rev + " (modified)"
		}
		return rev
	}
	if version != "" {
		return version
	}
	return "unknown"
}
