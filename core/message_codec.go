package core

import (
	"encoding/binary"
	"fmt"
)

// encodeMessage serializes a Message for storage as a KV value. This is a
// storage encoding only — it is never hashed or signed over, so it carries
// no canonicalization requirement (CanonicalizeBody in security.go is the
// wire/signing encoding).
func encodeMessage(m *Message) []byte {
	buf := make([]byte, 0, 160)
	buf = appendUint64BE(buf, uint64(m.Fid))
	buf = appendLenPrefixed(buf, []byte(m.Network))
	buf = appendUint32BE(buf, m.Timestamp)
	buf = append(buf, byte(m.Type))
	buf = append(buf, m.Hash[:]...)
	buf = append(buf, byte(m.HashScheme))
	buf = append(buf, m.Signer[:]...)
	buf = append(buf, byte(m.SignatureScheme))
	buf = appendLenPrefixed(buf, m.Signature)
	buf = encodeBody(buf, m.Type, m.Body)
	return buf
}

func decodeMessage(data []byte) (*Message, error) {
	r := &reader{buf: data}
	fid := r.uint64()
	network := string(r.lenPrefixed())
	timestamp := r.uint32()
	mt := MessageType(r.byte1())
	var hash MessageHash
	r.fixed(hash[:])
	hashScheme := HashScheme(r.byte1())
	var signer Signer
	r.fixed(signer[:])
	sigScheme := SignatureScheme(r.byte1())
	sig := r.lenPrefixed()
	body, err := decodeBody(r, mt)
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Message{
		Fid:             Fid(fid),
		Network:         network,
		Timestamp:       timestamp,
		Type:            mt,
		Body:            body,
		Hash:            hash,
		HashScheme:      hashScheme,
		Signer:          signer,
		Signature:       sig,
		SignatureScheme: sigScheme,
	}, nil
}

func encodeBody(buf []byte, mt MessageType, body Body) []byte {
	switch mt {
	case CastAdd:
		c := body.Cast
		buf = appendLenPrefixed(buf, []byte(c.Text))
		buf = appendUint32BE(buf, uint32(len(c.Mentions)))
		for _, m := range c.Mentions {
			buf = appendUint64BE(buf, uint64(m))
		}
		if c.ParentCastHash != nil {
			buf = append(buf, 1)
			buf = append(buf, c.ParentCastHash[:]...)
			buf = appendUint64BE(buf, uint64(*c.ParentCastFid))
		} else {
			buf = append(buf, 0)
		}
		buf = appendLenPrefixed(buf, []byte(c.ParentURL))
		buf = appendUint32BE(buf, uint32(len(c.Embeds)))
		for _, e := range c.Embeds {
			buf = appendLenPrefixed(buf, []byte(e))
		}
	case CastRemove:
		buf = append(buf, body.Cast.TargetHash[:]...)
	case ReactionAdd, ReactionRemove:
		r := body.Reaction
		buf = append(buf, r.Type)
		buf = append(buf, r.TargetCastHash[:]...)
		buf = appendUint64BE(buf, uint64(r.TargetFid))
	case LinkAdd, LinkRemove, LinkCompactState:
		l := body.Link
		buf = appendLenPrefixed(buf, []byte(l.Type))
		buf = appendUint64BE(buf, uint64(l.TargetFid))
		if l.DisplayTimestamp != nil {
			buf = append(buf, 1)
			buf = appendUint32BE(buf, *l.DisplayTimestamp)
		} else {
			buf = append(buf, 0)
		}
	case VerificationAdd, VerificationRemove:
		v := body.Verification
		buf = append(buf, v.Address[:]...)
		buf = appendLenPrefixed(buf, v.ClaimSignature)
		buf = append(buf, v.BlockHash[:]...)
		buf = append(buf, v.VerificationType)
	case UserDataAdd:
		u := body.UserData
		buf = append(buf, u.Type)
		buf = appendLenPrefixed(buf, []byte(u.Value))
	case UsernameProofType:
		p := body.UsernameProof
		buf = appendLenPrefixed(buf, []byte(p.Name))
		buf = append(buf, p.Owner[:]...)
		buf = appendUint32BE(buf, p.Timestamp)
		buf = appendLenPrefixed(buf, p.Signature)
	}
	return buf
}

func decodeBody(r *reader, mt MessageType) (Body, error) {
	switch mt {
	case CastAdd:
		c := &CastBody{}
		c.Text = string(r.lenPrefixed())
		n := r.uint32()
		c.Mentions = make([]Fid, n)
		for i := range c.Mentions {
			c.Mentions[i] = Fid(r.uint64())
		}
		if r.byte1() == 1 {
			var h MessageHash
			r.fixed(h[:])
			fid := Fid(r.uint64())
			c.ParentCastHash = &h
			c.ParentCastFid = &fid
		}
		c.ParentURL = string(r.lenPrefixed())
		ne := r.uint32()
		c.Embeds = make([]string, ne)
		for i := range c.Embeds {
			c.Embeds[i] = string(r.lenPrefixed())
		}
		return Body{Cast: c}, r.err
	case CastRemove:
		c := &CastBody{}
		r.fixed(c.TargetHash[:])
		return Body{Cast: c}, r.err
	case ReactionAdd, ReactionRemove:
		rb := &ReactionBody{}
		rb.Type = r.byte1()
		r.fixed(rb.TargetCastHash[:])
		rb.TargetFid = Fid(r.uint64())
		return Body{Reaction: rb}, r.err
	case LinkAdd, LinkRemove, LinkCompactState:
		l := &LinkBody{}
		l.Type = string(r.lenPrefixed())
		l.TargetFid = Fid(r.uint64())
		if r.byte1() == 1 {
			ts := r.uint32()
			l.DisplayTimestamp = &ts
		}
		return Body{Link: l}, r.err
	case VerificationAdd, VerificationRemove:
		v := &VerificationBody{}
		r.fixed(v.Address[:])
		v.ClaimSignature = r.lenPrefixed()
		r.fixed(v.BlockHash[:])
		v.VerificationType = r.byte1()
		return Body{Verification: v}, r.err
	case UserDataAdd:
		u := &UserDataBody{}
		u.Type = r.byte1()
		u.Value = string(r.lenPrefixed())
		return Body{UserData: u}, r.err
	case UsernameProofType:
		p := &UsernameProofBody{}
		p.Name = string(r.lenPrefixed())
		r.fixed(p.Owner[:])
		p.Timestamp = r.uint32()
		p.Signature = r.lenPrefixed()
		return Body{UsernameProof: p}, r.err
	default:
		return Body{}, fmt.Errorf("message_codec: unknown type %d", mt)
	}
}

func appendLenPrefixed(buf, b []byte) []byte {
	buf = appendUint32BE(buf, uint32(len(b)))
	return append(buf, b...)
}

// reader is a minimal cursor over a byte slice that records the first
// short-read error it hits rather than panicking, so decodeMessage can
// surface a single wrapped error for a corrupt row.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("message_codec: short read at offset %d wanting %d bytes", r.pos, n)
		return false
	}
	return true
}

func (r *reader) byte1() byte {
	if !r.need(1) {
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *reader) fixed(dst []byte) {
	if !r.need(len(dst)) {
		return
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
}

func (r *reader) uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) uint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) lenPrefixed() []byte {
	n := r.uint32()
	if !r.need(int(n)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out
}
