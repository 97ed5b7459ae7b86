package importer

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

type Encoding string

const (
	EncodingUTF8     Encoding = "UTF-8"
	EncodingShiftJIS Encoding = "Shift_JIS"
	EncodingEUCJP    Encoding = "EUC-JP"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode classifies data and returns it as Unicode text. Classification is
// heuristic; buffers that fit no encoding are read as UTF-8 with invalid
// sequences replaced, so a garbled file surfaces later as rows that fail to
// map rather than as an error here.
func Decode(data []byte) (string, Encoding) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), EncodingUTF8
	}
	if isShiftJIS(data) {
		if text, ok := transcode(japanese.ShiftJIS, data); ok {
			return text, EncodingShiftJIS
		}
	}
	if isEUCJP(data) {
		if text, ok := transcode(japanese.EUCJP, data); ok {
			return text, EncodingEUCJP
		}
	}
	return string(bytes.ToValidUTF8(data, []byte("�"))), EncodingUTF8
}

func transcode(enc encoding.Encoding, data []byte) (string, bool) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// isShiftJIS reports whether every byte sequence in data is structurally
// valid Shift_JIS (including half-width katakana).
func isShiftJIS(data []byte) bool {
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch {
		case b <= 0x7F, b >= 0xA1 && b <= 0xDF:
		case (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC):
			if i+1 >= len(data) {
				return false
			}
			t := data[i+1]
			if t < 0x40 || t == 0x7F || t > 0xFC {
				return false
			}
			i++
		default:
			return false
		}
	}
	return true
}

func isEUCJP(data []byte) bool {
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch {
		case b <= 0x7F:
		case b == 0x8E:
			if i+1 >= len(data) || data[i+1] < 0xA1 || data[i+1] > 0xDF {
				return false
			}
			i++
		case b == 0x8F:
			if i+2 >= len(data) || !eucByte(data[i+1]) || !eucByte(data[i+2]) {
				return false
			}
			i += 2
		case eucByte(b):
			if i+1 >= len(data) || !eucByte(data[i+1]) {
				return false
			}
			i++
		default:
			return false
		}
	}
	return true
}

func eucByte(b byte) bool { return b >= 0xA1 && b <= 0xFE }
