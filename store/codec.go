package store

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec selects the encoding of the stored envelope.
type Codec int

const (
	// CodecJSON is readable and matches what browser local storage holds.
	CodecJSON Codec = iota
	// CodecMsgpack is compact and used by the shared backends.
	CodecMsgpack
)

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// ParseCodec parses "json" or "msgpack".
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return CodecJSON, nil
	case "msgpack", "messagepack":
		return CodecMsgpack, nil
	default:
		return 0, errors.Newf("unknown codec %q", s)
	}
}

func (c Codec) marshal(v any) ([]byte, error) {
	switch c {
	case CodecJSON:
		return json.Marshal(v)
	case CodecMsgpack:
		return msgpack.Marshal(v)
	default:
		return nil, errors.Newf("unknown codec %d", int(c))
	}
}

func (c Codec) unmarshal(data []byte, v any) error {
	switch c {
	case CodecJSON:
		return json.Unmarshal(data, v)
	case CodecMsgpack:
		return msgpack.Unmarshal(data, v)
	default:
		return errors.Newf("unknown codec %d", int(c))
	}
}
