package rpc

import (
	"google.golang.org/protobuf/encoding/protowire"

	"hubnode/core"
)

// Body sub-message field numbers. Every message type uses the same field
// space; a given type populates the fields its CanonicalizeBody branch
// reads, matching the union-by-type shape of core.Body. CastAdd also carries
// ParentCastFid, which CanonicalizeBody does not hash.
const (
	bfText             = 1
	bfMentions         = 2
	bfParentCastHash   = 3
	bfParentCastFid    = 4
	bfParentURL        = 5
	bfEmbeds           = 6
	bfTargetHash       = 7
	bfReactionType     = 8
	bfTargetCastHash   = 9
	bfTargetFid        = 10
	bfLinkType         = 11
	bfLinkTargetFid    = 12
	bfDisplayTimestamp = 13
	bfAddress          = 14
	bfClaimSignature   = 15
	bfBlockHash        = 16
	bfVerificationType = 17
	bfUserDataType     = 18
	bfUserDataValue    = 19
	bfProofName        = 20
	bfProofOwner       = 21
	bfProofTimestamp   = 22
)

func encodeBody(mt core.MessageType, body core.Body) []byte {
	var b []byte
	switch mt {
	case core.CastAdd:
		c := body.Cast
		b = appendString(b, bfText, c.Text)
		for _, f := range c.Mentions {
			b = protowire.AppendTag(b, bfMentions, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(f))
		}
		if c.ParentCastHash != nil {
			b = appendBytes(b, bfParentCastHash, c.ParentCastHash[:])
		}
		if c.ParentCastFid != nil {
			b = protowire.AppendTag(b, bfParentCastFid, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(*c.ParentCastFid))
		}
		b = appendString(b, bfParentURL, c.ParentURL)
		for _, e := range c.Embeds {
			b = appendString(b, bfEmbeds, e)
		}
	case core.CastRemove:
		b = appendBytes(b, bfTargetHash, body.Cast.TargetHash[:])
	case core.ReactionAdd, core.ReactionRemove:
		r := body.Reaction
		b = protowire.AppendTag(b, bfReactionType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Type))
		b = appendBytes(b, bfTargetCastHash, r.TargetCastHash[:])
		b = protowire.AppendTag(b, bfTargetFid, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.TargetFid))
	case core.LinkAdd, core.LinkRemove, core.LinkCompactState:
		l := body.Link
		b = appendString(b, bfLinkType, l.Type)
		b = protowire.AppendTag(b, bfLinkTargetFid, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(l.TargetFid))
		if l.DisplayTimestamp != nil {
			b = protowire.AppendTag(b, bfDisplayTimestamp, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(*l.DisplayTimestamp))
		}
	case core.VerificationAdd, core.VerificationRemove:
		v := body.Verification
		b = appendBytes(b, bfAddress, v.Address[:])
		b = appendBytes(b, bfClaimSignature, v.ClaimSignature)
		b = appendBytes(b, bfBlockHash, v.BlockHash[:])
		b = protowire.AppendTag(b, bfVerificationType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.VerificationType))
	case core.UserDataAdd:
		u := body.UserData
		b = protowire.AppendTag(b, bfUserDataType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(u.Type))
		b = appendString(b, bfUserDataValue, u.Value)
	case core.UsernameProofType:
		p := body.UsernameProof
		b = appendString(b, bfProofName, p.Name)
		b = appendBytes(b, bfProofOwner, p.Owner[:])
		b = protowire.AppendTag(b, bfProofTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Timestamp))
	}
	return b
}

func appendString(b []byte, field protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, field protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func decodeBody(mt core.MessageType, raw []byte) (core.Body, error) {
	switch mt {
	case core.CastAdd:
		c := &core.CastBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, v []byte) error {
			switch num {
			case bfText:
				c.Text = string(v)
			case bfMentions:
				f, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return core.NewError(core.ErrParseFailure, nil, "malformed mention")
				}
				c.Mentions = append(c.Mentions, core.Fid(f))
			case bfParentCastHash:
				if len(v) != 20 {
					return core.NewError(core.ErrParseFailure, nil, "malformed parent cast hash")
				}
				var h core.MessageHash
				copy(h[:], v)
				c.ParentCastHash = &h
			case bfParentCastFid:
				f, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return core.NewError(core.ErrParseFailure, nil, "malformed parent cast fid")
				}
				fid := core.Fid(f)
				c.ParentCastFid = &fid
			case bfParentURL:
				c.ParentURL = string(v)
			case bfEmbeds:
				c.Embeds = append(c.Embeds, string(v))
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{Cast: c}, nil
	case core.CastRemove:
		c := &core.CastBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, v []byte) error {
			if num == bfTargetHash {
				if len(v) != 20 {
					return core.NewError(core.ErrParseFailure, nil, "malformed target hash")
				}
				copy(c.TargetHash[:], v)
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{Cast: c}, nil
	case core.ReactionAdd, core.ReactionRemove:
		r := &core.ReactionBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, v []byte) error {
			switch num {
			case bfReactionType:
				n, ok := consumeVarintByte(v)
				if !ok {
					return core.NewError(core.ErrParseFailure, nil, "malformed reaction type")
				}
				r.Type = n
			case bfTargetCastHash:
				if len(v) != 20 {
					return core.NewError(core.ErrParseFailure, nil, "malformed target cast hash")
				}
				copy(r.TargetCastHash[:], v)
			case bfTargetFid:
				f, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return core.NewError(core.ErrParseFailure, nil, "malformed target fid")
				}
				r.TargetFid = core.Fid(f)
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{Reaction: r}, nil
	case core.LinkAdd, core.LinkRemove, core.LinkCompactState:
		l := &core.LinkBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, v []byte) error {
			switch num {
			case bfLinkType:
				l.Type = string(v)
			case bfLinkTargetFid:
				f, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return core.NewError(core.ErrParseFailure, nil, "malformed link target fid")
				}
				l.TargetFid = core.Fid(f)
			case bfDisplayTimestamp:
				ts, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return core.NewError(core.ErrParseFailure, nil, "malformed display timestamp")
				}
				t := uint32(ts)
				l.DisplayTimestamp = &t
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{Link: l}, nil
	case core.VerificationAdd, core.VerificationRemove:
		v := &core.VerificationBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch num {
			case bfAddress:
				if len(val) != 20 {
					return core.NewError(core.ErrParseFailure, nil, "malformed address")
				}
				copy(v.Address[:], val)
			case bfClaimSignature:
				v.ClaimSignature = append([]byte(nil), val...)
			case bfBlockHash:
				if len(val) != 32 {
					return core.NewError(core.ErrParseFailure, nil, "malformed block hash")
				}
				copy(v.BlockHash[:], val)
			case bfVerificationType:
				n, ok := consumeVarintByte(val)
				if !ok {
					return core.NewError(core.ErrParseFailure, nil, "malformed verification type")
				}
				v.VerificationType = n
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{Verification: v}, nil
	case core.UserDataAdd:
		u := &core.UserDataBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, v []byte) error {
			switch num {
			case bfUserDataType:
				n, ok := consumeVarintByte(v)
				if !ok {
					return core.NewError(core.ErrParseFailure, nil, "malformed user data type")
				}
				u.Type = n
			case bfUserDataValue:
				u.Value = string(v)
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{UserData: u}, nil
	case core.UsernameProofType:
		p := &core.UsernameProofBody{}
		if err := walkFields(raw, func(num protowire.Number, typ protowire.Type, v []byte) error {
			switch num {
			case bfProofName:
				p.Name = string(v)
			case bfProofOwner:
				if len(v) != 20 {
					return core.NewError(core.ErrParseFailure, nil, "malformed proof owner")
				}
				copy(p.Owner[:], v)
			case bfProofTimestamp:
				ts, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return core.NewError(core.ErrParseFailure, nil, "malformed proof timestamp")
				}
				p.Timestamp = uint32(ts)
			}
			return nil
		}); err != nil {
			return core.Body{}, err
		}
		return core.Body{UsernameProof: p}, nil
	default:
		return core.Body{}, core.NewError(core.ErrParseFailure, nil, "unsupported message type %d", mt)
	}
}

// walkFields demuxes a sub-message's fields, handing each (number, wire
// value) pair to fn. Varint fields are passed as their raw encoded bytes so
// fn can re-parse them with protowire.ConsumeVarint.
func walkFields(raw []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return core.NewError(core.ErrParseFailure, nil, "malformed body tag")
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return core.NewError(core.ErrParseFailure, nil, "malformed body varint")
			}
			if err := fn(num, typ, b[:n]); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return core.NewError(core.ErrParseFailure, nil, "malformed body bytes")
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return core.NewError(core.ErrParseFailure, nil, "malformed body field %d", num)
			}
			b = b[n:]
		}
	}
	return nil
}

func consumeVarintByte(v []byte) (uint8, bool) {
	n, m := protowire.ConsumeVarint(v)
	if m < 0 {
		return 0, false
	}
	return uint8(n), true
}
