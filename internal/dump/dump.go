// Package dump renders captured UACP byte streams as tables.
package dump

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/securechannel"
	"github.com/backkem/uacp/pkg/service"
	"github.com/pterm/pterm"
)

// ParseHex decodes a hex dump. Whitespace and an optional 0x prefix on
// each token are ignored.
func ParseHex(data []byte) ([]byte, error) {
	var clean strings.Builder
	for _, tok := range strings.Fields(string(data)) {
		clean.WriteString(strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X"))
	}
	out, err := hex.DecodeString(clean.String())
	if err != nil {
		return nil, fmt.Errorf("dump: bad hex input: %w", err)
	}
	return out, nil
}

// Table returns one row per record of f: index, tag, chunk kind, size and
// a summary. The first row is the header.
func Table(f *message.Flight) pterm.TableData {
	data := pterm.TableData{{"#", "Tag", "Chunk", "Size", "Summary"}}
	for i, m := range f.Messages() {
		data = append(data, []string{
			strconv.Itoa(i),
			m.Type().String(),
			chunkKind(m),
			strconv.Itoa(len(m.Encode())),
			summary(m),
		})
	}
	return data
}

// ServiceTable projects the chunks of f through SecurityPolicy None and
// returns one row per service message. Connection records are skipped.
func ServiceTable(f *message.Flight) (pterm.TableData, error) {
	chunks := message.NewFlight()
	for _, m := range f.Messages() {
		if _, ok := m.(*message.Chunk); ok {
			chunks.Push(m)
		}
	}

	sf, err := service.FromMessageFlight(chunks, securechannel.NewNonePolicy(0))
	data := pterm.TableData{{"#", "Channel", "Request", "Message"}}
	if sf != nil {
		for i, e := range sf.Entries() {
			data = append(data, []string{
				strconv.Itoa(i),
				strconv.FormatUint(uint64(e.ChannelID), 10),
				strconv.FormatUint(uint64(e.RequestID), 10),
				fmt.Sprint(e.Message),
			})
		}
	}
	return data, err
}

func chunkKind(m message.Message) string {
	if c, ok := m.(*message.Chunk); ok {
		return c.ChunkType().String()
	}
	return message.ChunkTypeFinal.String()
}

func summary(m message.Message) string {
	if c, ok := m.(*message.Chunk); ok {
		id, err := c.SecureChannelID()
		if err != nil {
			return "truncated"
		}
		return fmt.Sprintf("channel %d, %d body bytes", id, len(c.Body()))
	}
	return fmt.Sprint(m)
}
