package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/serial"
)

func TestPacketEncoding(t *testing.T) {
	rq := Request{Tag: 300, Type: RqGet, Payload: []byte{1, 2, 3}}
	buf := rq.Encode()
	tassert(t, string(buf[:4]) == "\x82\x2c\x00\x01", "header bytes % x", buf)
	got, err := DecodeRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, rq, got)

	rs := Response{Tag: 7, Flags: ResponseOK | ResponseHasPayload, Payload: []byte("data")}
	back, err := DecodeResponse(rs.Encode())
	require.NoError(t, err)
	assert.Equal(t, rs, back)
	assert.True(t, back.OK())

	_, err = DecodeRequest([]byte{0x80})
	assert.Error(t, err)
	_, err = DecodeResponse([]byte{0x01})
	assert.Error(t, err)
	// payload without the payload flag
	_, err = DecodeResponse([]byte{0x01, ResponseOK, 'x'})
	assert.Error(t, err)
}

func TestQueryEncoding(t *testing.T) {
	h := hashcode.Sum(hashcode.SHA1, []byte("start"))
	for _, q := range []Query{
		{},
		{Length: 5},
		{Start: h},
		{Start: h, After: true, Reverse: true, Length: 1 << 20},
	} {
		flags, payload := encodeQuery(hashcode.SHA1, q)
		algo, got, err := decodeQuery(flags, payload)
		require.NoError(t, err)
		assert.Equal(t, hashcode.SHA1, algo)
		assert.Equal(t, q, got)
	}
	_, _, err := decodeQuery(0x08, serial.AppendString(nil, "sha1"))
	assert.Error(t, err)
	_, _, err = decodeQuery(0, serial.AppendString(nil, "nope"))
	assert.Error(t, err)
}

func TestAddPayload(t *testing.T) {
	ctx := context.Background()
	S := NewMemoryStore(hashcode.SHA1)
	want := "\x00\x0bhello world"

	var sent []byte
	R := NewRemoteStore(hashcode.SHA1, func(ctx context.Context, rq Request) (Response, error) {
		sent = rq.Payload
		return Loopback(S)(ctx, rq)
	})
	h, err := R.Add(ctx, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, want, string(sent))
	assert.Equal(t, "sha1:2aae6c35c94fcfb415dbe95f408b9ce91ee846ed", h.String())

	rs := Serve(ctx, S, Request{Tag: 1, Type: RqAdd, Payload: []byte(want)})
	require.True(t, rs.OK(), "%+v", rs)
	got, _, err := hashcode.Decode(rs.Payload)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	// short data and trailing bytes
	rs = Serve(ctx, S, Request{Tag: 2, Type: RqAdd, Payload: []byte(want[:8])})
	tassert(t, !rs.OK() && len(rs.Payload) > 0, "short: %+v", rs)
	rs = Serve(ctx, S, Request{Tag: 3, Type: RqAdd, Payload: []byte(want + "!")})
	tassert(t, !rs.OK() && len(rs.Payload) > 0, "trailing: %+v", rs)
}

func TestServeErrors(t *testing.T) {
	ctx := context.Background()
	S := NewMemoryStore(hashcode.SHA1)

	rs := Serve(ctx, S, Request{Tag: 1, Type: 42})
	tassert(t, !rs.OK() && rs.Tag == 1, "unknown type: %+v", rs)
	assert.Contains(t, string(rs.Payload), "unknown request type")

	// add for another algorithm
	payload := serial.AppendBS(nil, uint64(hashcode.SHA256))
	rs = Serve(ctx, S, Request{Tag: 2, Type: RqAdd, Payload: serial.AppendData(payload, []byte("x"))})
	tassert(t, !rs.OK() && len(rs.Payload) > 0, "algo mismatch: %+v", rs)

	// get of a missing chunk is not ok and has no payload
	h := hashcode.Sum(hashcode.SHA1, []byte("absent"))
	rs = Serve(ctx, S, Request{Tag: 3, Type: RqGet, Payload: h.Encode()})
	tassert(t, rs.Flags == 0, "missing: %+v", rs)

	rs = Serve(ctx, S, Request{Tag: 4, Type: RqGet, Payload: []byte{0x05}})
	tassert(t, !rs.OK() && len(rs.Payload) > 0, "bad hashcode: %+v", rs)

	R := NewRemoteStore(hashcode.SHA1, Loopback(S))
	_, err := R.Add(ctx, []byte("x"))
	require.NoError(t, err)
	n, err := R.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	R = NewRemoteStore(hashcode.SHA256, Loopback(S))
	_, err = R.Add(ctx, []byte("x"))
	var re *RemoteError
	assert.ErrorAs(t, err, &re)
	_, err = R.HashCodes(ctx, Query{})
	assert.ErrorAs(t, err, &re)
}
