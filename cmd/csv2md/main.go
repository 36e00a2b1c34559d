package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/chmdznr/music-dir-sync/internal/csvmd"
	"github.com/chmdznr/music-dir-sync/pkg/version"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	return &cli.App{
		Name:      "csv2md",
		Usage:     "Print CSV read from stdin as a Markdown table",
		UsageText: "csv2md [options] < data.csv",
		Version:   version.Version,
		Reader:    stdin,
		Writer:    stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "empty-str",
				Aliases: []string{"n"},
				Usage:   "Placeholder for empty, missing and None values",
				Value:   csvmd.DefaultEmptyStr,
			},
			&cli.BoolFlag{
				Name:    "keep-raw-header",
				Aliases: []string{"k"},
				Usage:   "Print column names as read, without removing '#'",
			},
			&cli.StringFlag{
				Name:    "separator",
				Aliases: []string{"s"},
				Usage:   "Field separator; 't' reads tab separated input",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Input format: csv or xlsx",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:  "sheet",
				Usage: "Worksheet to read from xlsx input (default: first sheet)",
			},
			&cli.BoolFlag{
				Name:  "html",
				Usage: "Print the table as HTML",
			},
		},
		Action: convert,
	}
}

func convert(c *cli.Context) error {
	opts := csvmd.Options{
		EmptyStr:      c.String("empty-str"),
		KeepRawHeader: c.Bool("keep-raw-header"),
		Comma:         csvmd.CommaFor(c.String("separator")),
	}

	var table *csvmd.Table
	var err error
	switch c.String("format") {
	case "csv":
		table, err = csvmd.Parse(c.App.Reader, opts.Comma)
	case "xlsx":
		table, err = csvmd.ParseXLSX(c.App.Reader, c.String("sheet"))
	default:
		return fmt.Errorf("unknown input format %q", c.String("format"))
	}
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := csvmd.Render(&buf, table, opts); err != nil {
		return err
	}

	if c.Bool("html") {
		return csvmd.RenderHTML(c.App.Writer, buf.Bytes())
	}
	_, err = c.App.Writer.Write(buf.Bytes())
	return err
}
