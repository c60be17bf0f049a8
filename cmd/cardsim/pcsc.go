package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog"
)

type pcscConn struct {
	ctx    *scard.Context
	card   *scard.Card
	reader string
	log    zerolog.Logger
}

// connectToCard establishes a PC/SC context and connects to the reader whose
// name contains want, or to the first reader.
func connectToCard(want string, log zerolog.Logger) (*pcscConn, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err == nil && len(readers) == 0 {
		err = errors.New("no smart card reader found")
	}
	if err != nil {
		releaseContext(ctx, log)
		return nil, err
	}

	reader := readers[0]
	if want != "" {
		reader = ""
		for _, r := range readers {
			if strings.Contains(r, want) {
				reader = r
				break
			}
		}
		if reader == "" {
			releaseContext(ctx, log)
			return nil, fmt.Errorf("no reader matches %q (have %s)", want, strings.Join(readers, ", "))
		}
	}

	// Restrict to T=0|T=1: some drivers reject the default protocol mask.
	c, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		releaseContext(ctx, log)
		return nil, fmt.Errorf("connect to %s: %w", reader, err)
	}

	log.Info().Str("reader", reader).Msg("using reader")
	return &pcscConn{ctx: ctx, card: c, reader: reader, log: log}, nil
}

func (p *pcscConn) Close() {
	if err := p.card.Disconnect(scard.LeaveCard); err != nil {
		p.log.Warn().Err(err).Msg("failed to disconnect card")
	}
	releaseContext(p.ctx, p.log)
}

func releaseContext(ctx *scard.Context, log zerolog.Logger) {
	if err := ctx.Release(); err != nil {
		log.Warn().Err(err).Msg("failed to release context")
	}
}
