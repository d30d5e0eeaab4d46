package mvcc

import (
	"encoding/binary"
	"io"

	"github.com/sierrasoftworks/humane-errors-go"
)

// CurrentVersion is the protocol major line this codec emits. Readers accept
// any version within the same major line and ignore unknown trailing fields.
const CurrentVersion uint32 = 1

const (
	tagAllCommitted byte = 0x00
	tagMixed        byte = 0x01

	presenceNull    byte = 0x00
	presencePresent byte = 0x01
)

var (
	ErrorCorruptStream      = humane.New("versioned value stream is corrupt", "drop the offending packet; a corrupt stream must never mutate state")
	ErrorUnsupportedVersion = humane.New("unsupported codec protocol version", "upgrade readers before writers cross a major protocol line")
)

// Reader is the byte stream decoders consume. *bytes.Reader and *bufio.Reader
// both satisfy it.
type Reader interface {
	io.Reader
	io.ByteReader
}

// ValueCodec serializes the raw value payload inside a versioned value
// stream. It is passed explicitly to the batch codec so tests can substitute
// their own implementation; there is no process-wide serializer instance.
type ValueCodec interface {
	WriteValue(w io.Writer, version uint32, value []byte) humane.Error
	ReadValue(r Reader, version uint32) ([]byte, humane.Error)
	CompareValues(a, b []byte) int
}

// BatchCodec encodes and decodes homogeneous batches of VersionedValue.
//
// A batch where every tid is zero and no value is NULL is written on the fast
// path: a single 0x00 tag byte followed by the inner codec's emission for
// each value. Any other batch takes the slow path: a 0x01 tag byte followed
// by varlong(tid), a presence byte, and (if present) the inner codec's bytes
// for each value.
type BatchCodec struct {
	inner ValueCodec
}

func NewBatchCodec(inner ValueCodec) BatchCodec {
	return BatchCodec{inner: inner}
}

// Write encodes the batch. The values slice may be empty; an empty batch
// still carries its tag byte so the decoder stays in sync.
func (c BatchCodec) Write(w io.Writer, version uint32, values []VersionedValue) humane.Error {
	if err := checkVersion(version); err != nil {
		return err
	}

	fast := true
	for _, v := range values {
		if v.TID != 0 || v.Value == nil {
			fast = false
			break
		}
	}

	if fast {
		if err := writeByte(w, tagAllCommitted); err != nil {
			return err
		}
		for _, v := range values {
			if err := c.inner.WriteValue(w, version, v.Value); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeByte(w, tagMixed); err != nil {
		return err
	}
	for _, v := range values {
		if err := c.writeOneBody(w, version, v); err != nil {
			return err
		}
	}
	return nil
}

// Read decodes a batch of n values previously written by Write.
func (c BatchCodec) Read(r Reader, version uint32, n int) ([]VersionedValue, humane.Error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	tag, err := r.ReadByte()
	if err != nil {
		return nil, ErrorCorruptStream
	}

	values := make([]VersionedValue, 0, n)
	switch tag {
	case tagAllCommitted:
		for i := 0; i < n; i++ {
			value, herr := c.inner.ReadValue(r, version)
			if herr != nil {
				return nil, herr
			}
			if value == nil {
				value = []byte{}
			}
			values = append(values, VersionedValue{TID: 0, Value: value})
		}

	case tagMixed:
		for i := 0; i < n; i++ {
			v, herr := c.readOneBody(r, version)
			if herr != nil {
				return nil, herr
			}
			values = append(values, v)
		}

	default:
		return nil, ErrorCorruptStream
	}

	return values, nil
}

// WriteOne encodes a single versioned value outside of a batch.
func (c BatchCodec) WriteOne(w io.Writer, version uint32, v VersionedValue) humane.Error {
	if err := checkVersion(version); err != nil {
		return err
	}
	return c.writeOneBody(w, version, v)
}

// ReadOne decodes a single versioned value written by WriteOne.
func (c BatchCodec) ReadOne(r Reader, version uint32) (VersionedValue, humane.Error) {
	if err := checkVersion(version); err != nil {
		return VersionedValue{}, err
	}
	return c.readOneBody(r, version)
}

// Compare is a total order over versioned values: by signed tid first, then
// by the inner codec's value comparator. NULL sorts before any present value.
func (c BatchCodec) Compare(a, b VersionedValue) int {
	switch {
	case a.TID < b.TID:
		return -1
	case a.TID > b.TID:
		return 1
	}

	switch {
	case a.Value == nil && b.Value == nil:
		return 0
	case a.Value == nil:
		return -1
	case b.Value == nil:
		return 1
	}

	return c.inner.CompareValues(a.Value, b.Value)
}

func (c BatchCodec) writeOneBody(w io.Writer, version uint32, v VersionedValue) humane.Error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v.TID)
	if _, err := w.Write(buf[:n]); err != nil {
		return humane.Wrap(err, "failed to write tid")
	}

	if v.Value == nil {
		return writeByte(w, presenceNull)
	}
	if err := writeByte(w, presencePresent); err != nil {
		return err
	}
	return c.inner.WriteValue(w, version, v.Value)
}

func (c BatchCodec) readOneBody(r Reader, version uint32) (VersionedValue, humane.Error) {
	tid, err := binary.ReadVarint(r)
	if err != nil {
		return VersionedValue{}, ErrorCorruptStream
	}

	presence, err := r.ReadByte()
	if err != nil {
		return VersionedValue{}, ErrorCorruptStream
	}

	switch presence {
	case presenceNull:
		return VersionedValue{TID: tid, Value: nil}, nil

	case presencePresent:
		value, herr := c.inner.ReadValue(r, version)
		if herr != nil {
			return VersionedValue{}, herr
		}
		if value == nil {
			value = []byte{}
		}
		return VersionedValue{TID: tid, Value: value}, nil

	default:
		return VersionedValue{}, ErrorCorruptStream
	}
}

func checkVersion(version uint32) humane.Error {
	if version == 0 || version > CurrentVersion {
		return ErrorUnsupportedVersion
	}
	return nil
}

func writeByte(w io.Writer, b byte) humane.Error {
	if _, err := w.Write([]byte{b}); err != nil {
		return humane.Wrap(err, "failed to write tag byte")
	}
	return nil
}
