package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/serial"
)

// RqType identifies a store request.
type RqType uint64

const (
	RqAdd             RqType = 0
	RqGet             RqType = 1
	RqContains        RqType = 2
	RqFlush           RqType = 3
	RqHashCodes       RqType = 4
	RqHashOfHashCodes RqType = 5
	RqLength          RqType = 9
)

func (t RqType) String() string {
	switch t {
	case RqAdd:
		return "add"
	case RqGet:
		return "get"
	case RqContains:
		return "contains"
	case RqFlush:
		return "flush"
	case RqHashCodes:
		return "hashcodes"
	case RqHashOfHashCodes:
		return "hash_of_hashcodes"
	case RqLength:
		return "length"
	}
	return "unknown"
}

// Flags of hashcodes and hash_of_hashcodes requests.
const (
	RqFlagAfter   = 0x01
	RqFlagStart   = 0x02
	RqFlagReverse = 0x04
	rqKnownFlags  = RqFlagAfter | RqFlagStart | RqFlagReverse
)

// Response flags.
const (
	ResponseOK         = 0x01
	ResponseHasPayload = 0x02
)

// Request is one store operation in binary form:
//
//	BS(tag) BS(flags) BS(type) payload
type Request struct {
	Tag     uint64
	Type    RqType
	Flags   uint64
	Payload []byte
}

// Response answers the Request with the same Tag:
//
//	BS(tag) BS(flags) payload
type Response struct {
	Tag     uint64
	Flags   uint64
	Payload []byte
}

func (rq Request) Encode() []byte {
	buf := serial.AppendBS(nil, rq.Tag)
	buf = serial.AppendBS(buf, rq.Flags)
	buf = serial.AppendBS(buf, uint64(rq.Type))
	return append(buf, rq.Payload...)
}

// DecodeRequest parses a whole request packet.
func DecodeRequest(buf []byte) (rq Request, err error) {
	var fields [3]uint64
	for i := range fields {
		n, used, err := serial.ReadBS(buf)
		if err != nil {
			return rq, errors.Wrap(err, "request header")
		}
		fields[i] = n
		buf = buf[used:]
	}
	rq.Tag, rq.Flags, rq.Type = fields[0], fields[1], RqType(fields[2])
	rq.Payload = buf
	return
}

func (rs Response) OK() bool {
	return rs.Flags&ResponseOK != 0
}

func (rs Response) Encode() []byte {
	buf := serial.AppendBS(nil, rs.Tag)
	buf = serial.AppendBS(buf, rs.Flags)
	return append(buf, rs.Payload...)
}

// DecodeResponse parses a whole response packet.
func DecodeResponse(buf []byte) (rs Response, err error) {
	tag, used, err := serial.ReadBS(buf)
	if err != nil {
		return rs, errors.Wrap(err, "response tag")
	}
	buf = buf[used:]
	flags, used, err := serial.ReadBS(buf)
	if err != nil {
		return rs, errors.Wrap(err, "response flags")
	}
	buf = buf[used:]
	if flags&ResponseHasPayload == 0 && len(buf) > 0 {
		return rs, errors.Errorf("response %d: %d unexpected payload bytes", tag, len(buf))
	}
	return Response{Tag: tag, Flags: flags, Payload: buf}, nil
}

// encodeQuery returns the flags and payload selecting q:
//
//	BSString(algo) [hashcode] BS(length)
func encodeQuery(algo hashcode.Algo, q Query) (flags uint64, payload []byte) {
	payload = serial.AppendString(nil, algo.String())
	if q.After {
		flags |= RqFlagAfter
	}
	if q.Reverse {
		flags |= RqFlagReverse
	}
	if !q.Start.IsZero() {
		flags |= RqFlagStart
		payload = q.Start.AppendEncoded(payload)
	}
	payload = serial.AppendBS(payload, uint64(q.Length))
	return
}

func decodeQuery(flags uint64, payload []byte) (algo hashcode.Algo, q Query, err error) {
	if flags&^rqKnownFlags != 0 {
		return algo, q, errors.Errorf("unknown query flags 0x%x", flags)
	}
	name, used, err := serial.ReadString(payload)
	if err != nil {
		return
	}
	payload = payload[used:]
	algo, err = hashcode.AlgoByName(name)
	if err != nil {
		return
	}
	q.After = flags&RqFlagAfter != 0
	q.Reverse = flags&RqFlagReverse != 0
	if flags&RqFlagStart != 0 {
		q.Start, used, err = hashcode.Decode(payload)
		if err != nil {
			return
		}
		payload = payload[used:]
	}
	length, used, err := serial.ReadBS(payload)
	if err != nil {
		return
	}
	if used != len(payload) {
		return algo, q, errors.Errorf("%d trailing query bytes", len(payload)-used)
	}
	q.Length = int(length)
	return
}

func succeeded(rq Request, payload []byte) Response {
	rs := Response{Tag: rq.Tag, Flags: ResponseOK, Payload: payload}
	if len(payload) > 0 {
		rs.Flags |= ResponseHasPayload
	}
	return rs
}

func failed(rq Request, err error) Response {
	return Response{Tag: rq.Tag, Flags: ResponseHasPayload, Payload: []byte(err.Error())}
}

// Serve performs rq against S.
func Serve(ctx context.Context, S Store, rq Request) Response {
	rs, err := serve(ctx, S, rq)
	if err != nil {
		return failed(rq, errors.Wrapf(err, "%s", rq.Type))
	}
	return rs
}

func serve(ctx context.Context, S Store, rq Request) (rs Response, err error) {
	p := rq.Payload
	switch rq.Type {
	case RqAdd:
		enum, used, err := serial.ReadBS(p)
		if err != nil {
			return rs, err
		}
		if hashcode.Algo(enum) != S.Algo() {
			return rs, errors.Errorf("store uses %s, not %s", S.Algo(), hashcode.Algo(enum))
		}
		data, n, err := serial.ReadData(p[used:])
		if err != nil {
			return rs, err
		}
		if used+n != len(p) {
			return rs, errors.Errorf("%d trailing bytes", len(p)-used-n)
		}
		h, err := S.Add(ctx, data)
		if err != nil {
			return rs, err
		}
		return succeeded(rq, h.Encode()), nil
	case RqGet, RqContains:
		h, used, err := hashcode.Decode(p)
		if err != nil {
			return rs, err
		}
		if used != len(p) {
			return rs, errors.Errorf("%d trailing bytes", len(p)-used)
		}
		if rq.Type == RqContains {
			yes, err := S.Contains(ctx, h)
			if err != nil || !yes {
				return Response{Tag: rq.Tag}, err
			}
			return succeeded(rq, nil), nil
		}
		data, err := S.Get(ctx, h)
		if errors.Is(err, ErrNotFound) {
			return Response{Tag: rq.Tag}, nil
		}
		if err != nil {
			return rs, err
		}
		return succeeded(rq, data), nil
	case RqFlush:
		if err = S.Flush(ctx); err != nil {
			return
		}
		return succeeded(rq, nil), nil
	case RqHashCodes, RqHashOfHashCodes:
		algo, q, err := decodeQuery(rq.Flags, p)
		if err != nil {
			return rs, err
		}
		if algo != S.Algo() {
			return rs, errors.Errorf("store uses %s, not %s", S.Algo(), algo)
		}
		if rq.Type == RqHashOfHashCodes {
			sum, final, err := S.HashOfHashCodes(ctx, q)
			if err != nil {
				return rs, err
			}
			payload := sum.Encode()
			if !final.IsZero() {
				payload = final.AppendEncoded(payload)
			}
			return succeeded(rq, payload), nil
		}
		hs, err := S.HashCodes(ctx, q)
		if err != nil {
			return rs, err
		}
		var payload []byte
		for _, h := range hs {
			payload = h.AppendEncoded(payload)
		}
		return succeeded(rq, payload), nil
	case RqLength:
		hs, err := S.HashCodes(ctx, Query{})
		if err != nil {
			return rs, err
		}
		return succeeded(rq, serial.BS(uint64(len(hs)))), nil
	}
	return rs, errors.Errorf("unknown request type %d", uint64(rq.Type))
}
