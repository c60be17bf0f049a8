// Command cardsim replays an APDU script against a simulated card described by
// a TOML file, or against the first PC/SC reader with -pcsc.
//
//	cardsim -config card.toml -script apdus.txt -transcript out.cbor
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardsim/internal/config"
	"github.com/gregLibert/cardsim/internal/logging"
	"github.com/gregLibert/cardsim/internal/transcript"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/iso7816"
	"github.com/gregLibert/cardsim/pkg/tlv"
)

type options struct {
	config     string
	script     string
	transcript string
	pcsc       bool
	reader     string
}

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout, logging.New("cardsim", os.Stderr)); err != nil {
		fmt.Fprintf(os.Stderr, "cardsim: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("cardsim", flag.ContinueOnError)
	fs.StringVar(&opts.config, "config", "", "card description (TOML); empty card when unset")
	fs.StringVar(&opts.script, "script", "", "APDU script, one hex command per line")
	fs.StringVar(&opts.transcript, "transcript", "", "write the session as CBOR to this path")
	fs.BoolVar(&opts.pcsc, "pcsc", false, "send the script to a PC/SC reader instead of the simulator")
	fs.StringVar(&opts.reader, "reader", "", "PC/SC reader name (substring); first reader when unset")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.script == "" {
		return options{}, errors.New("-script is required")
	}
	if opts.pcsc && opts.config != "" {
		return options{}, errors.New("-config does not apply with -pcsc")
	}
	return opts, nil
}

func run(args []string, stdout io.Writer, log zerolog.Logger) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.script)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	lines, err := parseScript(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse script %s: %w", opts.script, err)
	}

	var (
		target   iso7816.Transmitter
		reader   string
		protocol string
	)
	if opts.pcsc {
		conn, err := connectToCard(opts.reader, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		target, reader, protocol = conn.card, conn.reader, "pcsc"
	} else {
		cfg := config.Default()
		if opts.config != "" {
			if cfg, err = config.Load(opts.config); err != nil {
				return err
			}
		}
		d := card.New(cfg.CardConfig(), log)
		if err := cfg.Provision(d); err != nil {
			return fmt.Errorf("provision card: %w", err)
		}
		log.Info().Int("applets", len(cfg.Applets)).Str("protocol", cfg.Protocol.String()).Msg("card ready")
		target, reader, protocol = card.NewRouter(d), "cardsim", cfg.Protocol.String()
	}

	rec := transcript.NewRecorder(target, reader, protocol, time.Now())
	failed := replay(iso7816.NewClient(rec), lines, stdout, log)

	if opts.transcript != "" {
		out, err := rec.Bytes()
		if err != nil {
			return fmt.Errorf("encode transcript: %w", err)
		}
		if err := os.WriteFile(opts.transcript, out, 0o644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
		log.Info().Str("path", opts.transcript).Int("exchanges", rec.Len()).Msg("transcript written")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d commands could not be sent", failed, len(lines))
	}
	return nil
}

// replay sends every line and prints each exchange of its trace. It returns the
// number of lines that failed at the transport level.
func replay(client *iso7816.Client, lines []scriptLine, stdout io.Writer, log zerolog.Logger) int {
	failed := 0
	for _, l := range lines {
		fmt.Fprintf(stdout, "%4d > %X\n", l.number, l.raw)

		trace, err := client.SendRaw(l.raw)
		if err != nil {
			log.Error().Err(err).Int("line", l.number).Msg("exchange failed")
			failed++
			continue
		}
		for _, tx := range trace {
			resp := tx.Response
			data := ""
			if len(resp.Data) > 0 {
				data = fmt.Sprintf("%X ", resp.Data)
			}
			fmt.Fprintf(stdout, "     < %s%04X %s\n", data, uint16(resp.Status), resp.Status.Verbose())
			if tree, ok := describe(resp.Data); ok {
				fmt.Fprintln(stdout, tree)
			}
		}
		_, sw := trace.Result()
		log.Debug().Int("line", l.number).Int("exchanges", len(trace)).Stringer("sw", sw).Msg("command done")
	}
	return failed
}

// describe renders data as a TLV tree when it starts with a constructed tag.
func describe(data []byte) (string, bool) {
	if len(data) == 0 || data[0]&0x20 == 0 {
		return "", false
	}
	tree, err := tlv.Describe(data)
	if err != nil {
		return "", false
	}
	return "       " + strings.ReplaceAll(tree, "\n", "\n       "), true
}
