package legacy

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Errors reported while parsing db_dump output.
var (
	ErrDumpFormat  = errors.New("malformed db_dump output")
	ErrDumpOddData = errors.New("db_dump data section has a key without a value")
)

// parseDump reads the text produced by Berkeley DB's db_dump utility. Both
// the printable (-p) and the bytevalue (default) encodings are accepted.
// A dump may hold several databases; their pairs are concatenated.
func parseDump(r *bufio.Reader) ([][2][]byte, error) {
	var (
		pairs     [][2][]byte
		inHeader  = true
		printable bool
		pending   []byte
		havePend  bool
		lineNo    int
	)

	for {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line == "" && errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		line = strings.TrimRight(line, "\r\n")

		switch {
		case inHeader:
			if line == "HEADER=END" {
				inHeader = false
				break
			}
			if k, v, ok := strings.Cut(line, "="); ok && k == "format" {
				switch v {
				case "print":
					printable = true
				case "bytevalue":
					printable = false
				default:
					return nil, fmt.Errorf("%w: line %d: unknown format %q", ErrDumpFormat, lineNo, v)
				}
			}
		case line == "DATA=END":
			if havePend {
				return nil, ErrDumpOddData
			}
			inHeader = true
			printable = false
		case strings.HasPrefix(line, " "):
			b, derr := decodeDumpLine(line[1:], printable)
			if derr != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrDumpFormat, lineNo, derr)
			}
			if havePend {
				pairs = append(pairs, [2][]byte{pending, b})
				pending, havePend = nil, false
			} else {
				pending, havePend = b, true
			}
		default:
			return nil, fmt.Errorf("%w: line %d: unexpected %q", ErrDumpFormat, lineNo, line)
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	if havePend {
		return nil, ErrDumpOddData
	}
	if !inHeader {
		return nil, fmt.Errorf("%w: missing DATA=END", ErrDumpFormat)
	}
	return pairs, nil
}

// decodeDumpLine decodes one data line. In printable mode a backslash starts
// either an escaped backslash or a two-digit hex byte.
func decodeDumpLine(s string, printable bool) ([]byte, error) {
	if !printable {
		return hex.DecodeString(s)
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			out = append(out, '\\')
			i++
			continue
		}
		if i+2 >= len(s) {
			return nil, fmt.Errorf("truncated escape at offset %d", i)
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return nil, err
		}
		out = append(out, b[0])
		i += 2
	}
	return out, nil
}
