package datafile

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/t7a/vt/serial"
)

// FlagCompressed marks a zlib compressed payload.
const FlagCompressed = 0x01

const (
	// Records shorter than this are never compressed.
	minCompress = 16
	// MaxPayload bounds a payload length read from disk.
	MaxPayload = 1 << 30
)

// Record is one data chunk as stored in a data file:
//
//	BS(flags) BS(len(payload)) payload
type Record struct {
	Flags   uint64
	Payload []byte
}

// NewRecord prepares data for storage, compressing it when that saves
// more than 10%.
func NewRecord(data []byte) (rec Record) {
	rec.Payload = data
	if len(data) < minCompress {
		return
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		return
	}
	if buf.Len()*10 < len(data)*9 {
		rec.Flags = FlagCompressed
		rec.Payload = buf.Bytes()
	}
	return
}

// Compressed reports whether the payload is zlib compressed.
func (rec Record) Compressed() bool {
	return rec.Flags&FlagCompressed != 0
}

// Encode returns the on disk form of rec.
func (rec Record) Encode() []byte {
	buf := make([]byte, 0, rec.Len())
	buf = serial.AppendBS(buf, rec.Flags)
	return serial.AppendData(buf, rec.Payload)
}

// Len is the length of the encoded record.
func (rec Record) Len() int {
	return serial.Size(rec.Flags) + serial.Size(uint64(len(rec.Payload))) + len(rec.Payload)
}

// Data returns the uncompressed chunk.
func (rec Record) Data() (data []byte, err error) {
	if !rec.Compressed() {
		return rec.Payload, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(rec.Payload))
	if err != nil {
		return nil, errors.Wrap(err, "zlib header")
	}
	defer zr.Close()
	data, err = ioutil.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "zlib payload")
	}
	return
}

func checkFlags(flags uint64) error {
	if flags&^FlagCompressed != 0 {
		return errors.Errorf("unsupported record flags: 0x%02x", flags)
	}
	return nil
}

// ParseHeader decodes the flags and payload length at the front of
// buf. It fails with serial.ErrTruncated if buf ends inside the header.
func ParseHeader(buf []byte) (flags, length uint64, used int, err error) {
	flags, used, err = serial.ReadBS(buf)
	if err != nil {
		return
	}
	if err = checkFlags(flags); err != nil {
		return
	}
	length, n, err := serial.ReadBS(buf[used:])
	used += n
	if err != nil {
		return
	}
	if length > MaxPayload {
		err = errors.Errorf("record payload length %d exceeds %d", length, MaxPayload)
	}
	return
}

// ParseRecord decodes a record from the front of buf. The payload
// aliases buf.
func ParseRecord(buf []byte) (rec Record, used int, err error) {
	flags, length, used, err := ParseHeader(buf)
	if err != nil {
		return
	}
	if uint64(len(buf)-used) < length {
		return rec, used, errors.Wrapf(serial.ErrTruncated, "need %d payload bytes, have %d", length, len(buf)-used)
	}
	rec.Flags = flags
	rec.Payload = buf[used : used+int(length)]
	return rec, used + int(length), nil
}

// ReadRecord reads one record from a stream. It returns io.EOF only
// at a clean record boundary.
func ReadRecord(br *bufio.Reader) (rec Record, err error) {
	rec.Flags, err = serial.ReadBSFrom(br)
	if err != nil {
		return
	}
	if err = checkFlags(rec.Flags); err != nil {
		return
	}
	length, err := serial.ReadBSFrom(br)
	if err != nil {
		if err == io.EOF {
			err = serial.ErrTruncated
		}
		return
	}
	if length > MaxPayload {
		return rec, errors.Errorf("record payload length %d exceeds %d", length, MaxPayload)
	}
	rec.Payload = make([]byte, length)
	_, err = io.ReadFull(br, rec.Payload)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = errors.Wrapf(serial.ErrTruncated, "record payload of %d bytes", length)
	}
	return
}
