package blockify

import (
	"github.com/pkg/errors"
	"github.com/t7a/vt/datafile"
	"github.com/t7a/vt/serial"
)

// VTDScanner proposes a boundary at the start of every record of a
// data file stream, so chunking a data file keeps its records intact
// where their size allows. Payloads are skipped without buffering.
type VTDScanner struct {
	offset int64
	hdr    []byte
	skip   uint64
	err    error
}

func NewVTDScanner() *VTDScanner {
	return &VTDScanner{}
}

// Lag is zero: a record start is known once the previous record ends.
func (s *VTDScanner) Lag() int {
	return 0
}

// Err reports malformed input. Once set, Scan reports nothing further.
func (s *VTDScanner) Err() error {
	return s.err
}

func (s *VTDScanner) Scan(buf []byte) (offsets []int64) {
	for len(buf) > 0 && s.err == nil {
		if s.skip > 0 {
			n := uint64(len(buf))
			if s.skip < n {
				n = s.skip
			}
			s.skip -= n
			s.offset += int64(n)
			buf = buf[n:]
			if s.skip == 0 {
				offsets = append(offsets, s.offset)
			}
			continue
		}
		s.hdr = append(s.hdr, buf[0])
		s.offset++
		buf = buf[1:]
		_, length, _, err := datafile.ParseHeader(s.hdr)
		if errors.Is(err, serial.ErrTruncated) {
			continue
		}
		if err != nil {
			s.err = errors.Wrapf(err, "record header at %d", s.offset-int64(len(s.hdr)))
			break
		}
		s.hdr = s.hdr[:0]
		s.skip = length
		if length == 0 {
			offsets = append(offsets, s.offset)
		}
	}
	return
}
