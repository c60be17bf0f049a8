package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gregLibert/cardsim/pkg/tlv"
)

type scriptLine struct {
	number int
	raw    []byte
}

// parseScript reads one hex command per line. Blanks and colons are ignored and
// '#' starts a comment.
func parseScript(r io.Reader) ([]scriptLine, error) {
	var out []scriptLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		raw, err := tlv.ParseHex(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, scriptLine{number: n, raw: raw})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
