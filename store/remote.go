package store

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/serial"
)

// Transport delivers a request to a store and returns its response.
type Transport func(ctx context.Context, rq Request) (Response, error)

// RemoteError is a failure reported by the serving store.
type RemoteError struct {
	Type RqType
	Msg  string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Msg
}

// RemoteStore is a Store reached through a Transport.
type RemoteStore struct {
	algo hashcode.Algo
	send Transport
	tag  atomic.Uint64
}

func NewRemoteStore(algo hashcode.Algo, send Transport) *RemoteStore {
	return &RemoteStore{algo: algo, send: send}
}

// Loopback serves requests from S after a round trip through their
// binary encoding.
func Loopback(S Store) Transport {
	return func(ctx context.Context, rq Request) (rs Response, err error) {
		rq, err = DecodeRequest(rq.Encode())
		if err != nil {
			return
		}
		return DecodeResponse(Serve(ctx, S, rq).Encode())
	}
}

func (S *RemoteStore) Algo() hashcode.Algo {
	return S.algo
}

// call sends a request and fails on a response reporting an error.
func (S *RemoteStore) call(ctx context.Context, typ RqType, flags uint64, payload []byte) (rs Response, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	rq := Request{Tag: S.tag.Add(1), Type: typ, Flags: flags, Payload: payload}
	rs, err = S.send(ctx, rq)
	if err != nil {
		return rs, errors.Wrapf(err, "%s", typ)
	}
	if rs.Tag != rq.Tag {
		return rs, errors.Errorf("%s: response tag %d, want %d", typ, rs.Tag, rq.Tag)
	}
	if !rs.OK() && rs.Flags&ResponseHasPayload != 0 {
		return rs, &RemoteError{Type: typ, Msg: string(rs.Payload)}
	}
	return
}

func (S *RemoteStore) Add(ctx context.Context, data []byte) (h hashcode.HashCode, err error) {
	payload := serial.AppendBS(nil, uint64(S.algo))
	rs, err := S.call(ctx, RqAdd, 0, serial.AppendData(payload, data))
	if err != nil {
		return
	}
	h, _, err = hashcode.Decode(rs.Payload)
	if err != nil {
		return h, errors.Wrap(err, "add response")
	}
	if !h.Matches(data) {
		return hashcode.HashCode{}, errors.Errorf("remote returned %s for data it was sent", h)
	}
	return
}

func (S *RemoteStore) Get(ctx context.Context, h hashcode.HashCode) (data []byte, err error) {
	rs, err := S.call(ctx, RqGet, 0, h.Encode())
	if err != nil {
		return
	}
	if !rs.OK() {
		return nil, &MissingHashcodeError{Hash: h}
	}
	return rs.Payload, nil
}

func (S *RemoteStore) Contains(ctx context.Context, h hashcode.HashCode) (ok bool, err error) {
	rs, err := S.call(ctx, RqContains, 0, h.Encode())
	if err != nil {
		return
	}
	return rs.OK(), nil
}

func (S *RemoteStore) Flush(ctx context.Context) (err error) {
	_, err = S.call(ctx, RqFlush, 0, nil)
	return
}

func (S *RemoteStore) HashCodes(ctx context.Context, q Query) (hs []hashcode.HashCode, err error) {
	flags, payload := encodeQuery(S.algo, q)
	rs, err := S.call(ctx, RqHashCodes, flags, payload)
	if err != nil {
		return
	}
	return hashcode.DecodeAll(rs.Payload)
}

func (S *RemoteStore) HashOfHashCodes(ctx context.Context, q Query) (sum, final hashcode.HashCode, err error) {
	flags, payload := encodeQuery(S.algo, q)
	rs, err := S.call(ctx, RqHashOfHashCodes, flags, payload)
	if err != nil {
		return
	}
	hs, err := hashcode.DecodeAll(rs.Payload)
	if err != nil {
		return
	}
	switch len(hs) {
	case 2:
		final = hs[1]
		fallthrough
	case 1:
		sum = hs[0]
	default:
		err = errors.Errorf("hash_of_hashcodes response holds %d hashcodes", len(hs))
	}
	return
}

// Len returns the number of chunks in the remote store.
func (S *RemoteStore) Len(ctx context.Context) (n int, err error) {
	rs, err := S.call(ctx, RqLength, 0, nil)
	if err != nil {
		return
	}
	count, _, err := serial.ReadBS(rs.Payload)
	return int(count), err
}

func (S *RemoteStore) Close() error {
	return nil
}
