package ship

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"github.com/solvane/solvane/internal/protocol"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ConvertPCMessage converts a UTF-16LE chat text into the 8-bit encoding
// shared with the other variants. The language tag after the leading tab
// picks the codepage: 'J' means SHIFT-JIS, anything else ISO-8859-1.
func ConvertPCMessage(in []byte) ([]byte, error) {
	var enc *encoding.Encoder
	if len(in) > 2 && in[2] == 'J' {
		enc = japanese.ShiftJIS.NewEncoder()
	} else {
		enc = charmap.ISO8859_1.NewEncoder()
	}

	u, err := utf16le.NewDecoder().Bytes(in)
	if err != nil {
		return nil, fmt.Errorf("decoding utf-16 text: %w", err)
	}
	out, err := enc.Bytes(u)
	if err != nil {
		return nil, fmt.Errorf("transcoding text: %w", err)
	}
	return out, nil
}

// ConvertToPCMessage converts an 8-bit chat text back to UTF-16LE for a PC
// recipient, using the same language tag rule for the source codepage.
func ConvertToPCMessage(in []byte) ([]byte, error) {
	var dec *encoding.Decoder
	if len(in) > 1 && in[1] == 'J' {
		dec = japanese.ShiftJIS.NewDecoder()
	} else {
		dec = charmap.ISO8859_1.NewDecoder()
	}

	u, err := dec.Bytes(in)
	if err != nil {
		return nil, fmt.Errorf("decoding text: %w", err)
	}
	out, err := utf16le.NewEncoder().Bytes(u)
	if err != nil {
		return nil, fmt.Errorf("encoding utf-16 text: %w", err)
	}
	return out, nil
}

// SetAutoreply stores a client's guild-search autoreply. PC clients send
// UTF-16LE; it is stored in the 8-bit form every variant can read.
func (c *Client) SetAutoreply(body []byte) error {
	if c.Variant() == protocol.VariantPC {
		conv, err := ConvertPCMessage(body)
		if err != nil {
			return fmt.Errorf("converting autoreply: %w", err)
		}
		body = conv
	}
	c.storeAutoreply(body)
	return nil
}
