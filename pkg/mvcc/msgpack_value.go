package mvcc

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackValueCodec is the default inner value codec. Each payload is a
// msgpack emission prefixed with its byte length so the decoder never reads
// past the value's end of the stream.
type MsgpackValueCodec struct{}

func (MsgpackValueCodec) WriteValue(w io.Writer, version uint32, value []byte) humane.Error {
	if err := checkVersion(version); err != nil {
		return err
	}

	payload, err := msgpack.Marshal(value)
	if err != nil {
		return humane.Wrap(err, "failed to marshal value payload")
	}

	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(payload)))
	if _, err := w.Write(buf[:n]); err != nil {
		return humane.Wrap(err, "failed to write value length")
	}
	if _, err := w.Write(payload); err != nil {
		return humane.Wrap(err, "failed to write value payload")
	}
	return nil
}

func (MsgpackValueCodec) ReadValue(r Reader, version uint32) ([]byte, humane.Error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	length, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrorCorruptStream
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrorCorruptStream
	}

	var value []byte
	if err := msgpack.Unmarshal(payload, &value); err != nil {
		return nil, ErrorCorruptStream
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (MsgpackValueCodec) CompareValues(a, b []byte) int {
	return bytes.Compare(a, b)
}
