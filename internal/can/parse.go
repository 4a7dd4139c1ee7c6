package can

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoFrame marks a line that does not carry a well-formed frame. Lines
// like this are steady-state noise from the adapter; callers skip them and
// keep reading.
var ErrNoFrame = errors.New("can: no frame in line")

// lineRE matches the adapter output format, e.g.
//
//	ID: 0x631, Data: 8 40 05 30 FF 00 40 00 00
//
// Some firmware revisions label the count "DLC:" instead of "Data:"; both
// are accepted. The declared count must match the number of data bytes.
var lineRE = regexp.MustCompile(
	`ID:\s*0x([0-9A-Fa-f]+)\s*,\s*(?:Data|DLC):\s*(\d+)((?:\s+[0-9A-Fa-f]{2})*)`,
)

// ParseLine converts one line of adapter text into a Frame. Parsing is pure
// and stateless; any malformed line yields ErrNoFrame with no side effect.
// The returned frame carries no timestamp; the caller stamps it on receipt.
func ParseLine(line string) (Frame, error) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return Frame{}, ErrNoFrame
	}

	id, err := strconv.ParseUint(m[1], 16, 32)
	if err != nil || id > MaxExtID {
		return Frame{}, ErrNoFrame
	}

	dlc, err := strconv.Atoi(m[2])
	if err != nil || dlc > 8 {
		return Frame{}, ErrNoFrame
	}

	tokens := strings.Fields(m[3])
	if len(tokens) != dlc {
		return Frame{}, ErrNoFrame
	}

	data := make([]byte, 0, dlc)
	for _, tok := range tokens {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Frame{}, ErrNoFrame
		}
		data = append(data, byte(v))
	}

	return Frame{ID: uint32(id), Length: uint8(dlc), Data: data}, nil
}
