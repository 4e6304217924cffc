// uacp-dump decodes a captured UACP byte stream and prints its records.
//
// Usage:
//
//	uacp-dump [options] <file>
//
// Options:
//
//	-hex      Input is a hex dump instead of raw bytes
//	-service  Also decode secure channel chunks as service messages
//
// Use "-" to read from standard input.
//
// Example:
//
//	uacp-dump -hex -service capture.txt
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/backkem/uacp/internal/dump"
	"github.com/backkem/uacp/pkg/message"
	"github.com/pterm/pterm"
)

func main() {
	hexInput := flag.Bool("hex", false, "Input is a hex dump")
	services := flag.Bool("service", false, "Decode secure channel chunks as service messages")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] <file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *hexInput, *services); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(path string, hexInput, services bool) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	if hexInput {
		if data, err = dump.ParseHex(data); err != nil {
			return err
		}
	}

	f, err := message.DecodeFlight(data)
	if err != nil {
		var derr *message.DecodeError
		if !errors.Is(err, message.ErrIncompleteRecord) && !errors.As(err, &derr) {
			return err
		}
		pterm.Warning.Println(fmt.Sprintf("decoding stopped early: %v", err))
	}

	pterm.DefaultSection.Println(fmt.Sprintf("%d records, %d bytes", f.Len(), len(data)))
	if err := pterm.DefaultTable.WithHasHeader().WithData(dump.Table(f)).Render(); err != nil {
		return err
	}

	if !services {
		return nil
	}

	table, err := dump.ServiceTable(f)
	pterm.DefaultSection.Println("Service messages")
	if rerr := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); rerr != nil {
		return rerr
	}
	return err
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
