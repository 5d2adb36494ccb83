package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/faanross/simulacra_lsb/internal/config"
	"github.com/faanross/simulacra_lsb/internal/logger"
	"github.com/faanross/simulacra_lsb/internal/spec"
)

const version = "0.2.0"

// runner carries what every command needs once flags are parsed.
type runner struct {
	config *config.Config
	log    logger.Logger
}

func main() {
	r := &runner{}

	app := cli.NewApp()
	app.Name = "simulacra"
	app.Usage = "Hide AES-encrypted messages in the low bits of lossless images"
	app.Version = version
	app.Flags = getFlags()
	app.Before = r.setup
	app.Commands = []cli.Command{
		{
			Name:   "keygen",
			Usage:  "generate a random key, or derive one from a passphrase",
			Flags:  []cli.Flag{passphraseFlag},
			Action: r.keygen,
		},
		{
			Name:      "embed",
			Usage:     "encrypt a message and hide it in an image",
			ArgsUsage: "IMAGE",
			Flags: append(keyFlags(),
				cli.StringFlag{
					Name:  "message, m",
					Usage: "message `TEXT` to hide",
				},
				cli.StringFlag{
					Name:  "message-file, f",
					Usage: "read the message from `FILE`",
				},
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write the stego image to `FILE` (default: <prefix><image> in the output dir)",
				},
			),
			Action: r.embed,
		},
		{
			Name:      "extract",
			Usage:     "recover and decrypt the message hidden in an image",
			ArgsUsage: "IMAGE",
			Flags: append(keyFlags(),
				cli.StringSliceFlag{
					Name:  "try",
					Usage: "also try this hex `KEY`; may be repeated",
				},
			),
			Action: r.extract,
		},
		{
			Name:      "analyze",
			Usage:     "report LSB statistics that hint at hidden data",
			ArgsUsage: "IMAGE",
			Action:    r.analyze,
		},
		{
			Name:      "serve",
			Usage:     "serve stego images as DNS TXT records",
			ArgsUsage: "[IMAGE...]",
			Flags:     serveFlags(),
			Action:    r.serve,
		},
		{
			Name:      "publish",
			Usage:     "upload images to a running server's HTTP API",
			ArgsUsage: "IMAGE...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "server, s",
					Usage: "API base `URL` (default: http://<dns.http>)",
				},
				cli.StringFlag{
					Name:  "id",
					Usage: "publish under this message `ID` (single image only)",
				},
			},
			Action: r.publish,
		},
		{
			Name:      "zone",
			Usage:     "print an image as master-file TXT records",
			ArgsUsage: "IMAGE",
			Flags: []cli.Flag{
				domainFlag,
				cli.StringFlag{
					Name:  "id",
					Usage: "message `ID` (default: random)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write records to `FILE` instead of stdout",
				},
			},
			Action: r.zone,
		},
		{
			Name:      "fetch",
			Usage:     "download a published image over DNS",
			ArgsUsage: "ID",
			Flags: append(keyFlags(),
				domainFlag,
				cli.StringFlag{
					Name:  "server, s",
					Usage: "DNS server `ADDR` to query (default: dns.addr)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Usage: "save the image to `FILE`",
				},
				cli.BoolFlag{
					Name:  "reveal",
					Usage: "extract and decrypt the hidden message after fetching",
				},
			),
			Action: r.fetch,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "simulacra: %s\n", describe(err))
		os.Exit(1)
	}
}

func (r *runner) setup(c *cli.Context) error {
	config, err := config.NewConfig(c.String("config"))
	if err != nil {
		return err
	}
	if level := c.String("level"); level != "" {
		config.LogLevel, err = logger.ParseLevel(level)
		if err != nil {
			return err
		}
	}
	r.config = config
	r.log = logger.NewLogger(config.LogLevel)
	return nil
}

// describe turns core errors into advice on what to do about them.
func describe(err error) string {
	switch spec.KindOf(err) {
	case spec.KindInvalidKeyLength:
		return fmt.Sprintf("%v (keys are 64 hex characters; see `simulacra keygen`)", err)
	case spec.KindCapacityExceeded:
		return fmt.Sprintf("%v (use a larger image or a shorter message)", err)
	case spec.KindDecryption:
		return fmt.Sprintf("%v (wrong key, or the image was altered)", err)
	case spec.KindMissingTerminator:
		return fmt.Sprintf("%v (the image holds no message, or was re-encoded lossily)", err)
	case spec.KindUnsupportedFormat:
		return fmt.Sprintf("%v (only PNG, BMP and TIFF keep hidden bits intact)", err)
	case spec.KindUnframeable:
		return fmt.Sprintf("%v (shorten the message or split it across images)", err)
	default:
		return err.Error()
	}
}

var (
	passphraseFlag = cli.BoolFlag{
		Name:  "passphrase, p",
		Usage: "prompt for a passphrase and derive the key from it",
	}
	domainFlag = cli.StringFlag{
		Name:  "domain",
		Usage: "DNS `ZONE` records live under (default: dns.domain)",
	}
)

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error] (default: log.level or info)",
		},
	}
}

func keyFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "key, k",
			Usage:  "hex `KEY` (prompted for when no key source is given)",
			EnvVar: "SIMULACRA_KEY",
		},
		cli.StringFlag{
			Name:  "key-file",
			Usage: "read the key from `FILE`",
		},
		passphraseFlag,
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		domainFlag,
		cli.StringFlag{
			Name:  "addr, a",
			Usage: "bind the DNS server to `ADDR` (default: dns.addr)",
		},
		cli.StringFlag{
			Name:  "http",
			Usage: "serve the upload API on `ADDR` (default: dns.http)",
		},
		cli.StringFlag{
			Name:  "storage",
			Usage: "persist published images to `FILE` (default: dns.storage)",
		},
		cli.StringSliceFlag{
			Name:  "zone, z",
			Usage: "load records from master `FILE`; may be repeated",
		},
		cli.DurationFlag{
			Name:  "retention",
			Usage: "drop images published longer ago than `DURATION` (default: dns.retention)",
		},
	}
}
