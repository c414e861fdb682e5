// Package rpc implements the length-delimited protocol-buffer wire framing
// for the message submission API, using the low-level protowire primitives
// rather than generated stubs (SPEC_FULL.md §4.4): a hand-rolled tag/field
// scheme is enough for the single request shape this API needs, and avoids
// a protoc-generated dependency for one message type.
package rpc

import (
	"google.golang.org/protobuf/encoding/protowire"

	"hubnode/core"
)

// Field numbers for the top-level submission frame.
const (
	fieldFid             = 1
	fieldNetwork         = 2
	fieldTimestamp       = 3
	fieldType            = 4
	fieldBody            = 5
	fieldHash            = 6
	fieldHashScheme      = 7
	fieldSigner          = 8
	fieldSignature       = 9
	fieldSignatureScheme = 10
)

// EncodeMessageFrame serializes m into the wire format DecodeMessageFrame
// accepts, for use by clients and by the migration backfill tooling.
func EncodeMessageFrame(m *core.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldFid, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Fid))
	b = protowire.AppendTag(b, fieldNetwork, protowire.BytesType)
	b = protowire.AppendString(b, m.Network)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Timestamp))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeBody(m.Type, m.Body))
	b = protowire.AppendTag(b, fieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Hash[:])
	b = protowire.AppendTag(b, fieldHashScheme, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.HashScheme))
	b = protowire.AppendTag(b, fieldSigner, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Signer[:])
	b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Signature)
	b = protowire.AppendTag(b, fieldSignatureScheme, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SignatureScheme))
	return b
}

// DecodeMessageFrame parses a raw submission frame into a Message. It does
// not verify the message; that is the Validator's job once the caller
// passes the result to Engine.SubmitMessage.
func DecodeMessageFrame(raw []byte) (*core.Message, error) {
	m := &core.Message{}
	var bodyBytes []byte
	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, core.NewError(core.ErrParseFailure, nil, "malformed tag")
		}
		b = b[n:]
		switch num {
		case fieldFid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed fid")
			}
			m.Fid = core.Fid(v)
			b = b[n:]
		case fieldNetwork:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed network")
			}
			m.Network = v
			b = b[n:]
		case fieldTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed timestamp")
			}
			m.Timestamp = uint32(v)
			b = b[n:]
		case fieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed type")
			}
			m.Type = core.MessageType(v)
			b = b[n:]
		case fieldBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed body")
			}
			bodyBytes = v
			b = b[n:]
		case fieldHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(m.Hash) {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed hash")
			}
			copy(m.Hash[:], v)
			b = b[n:]
		case fieldHashScheme:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed hash scheme")
			}
			m.HashScheme = core.HashScheme(v)
			b = b[n:]
		case fieldSigner:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(m.Signer) {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed signer")
			}
			copy(m.Signer[:], v)
			b = b[n:]
		case fieldSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed signature")
			}
			m.Signature = append([]byte(nil), v...)
			b = b[n:]
		case fieldSignatureScheme:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed signature scheme")
			}
			m.SignatureScheme = core.SignatureScheme(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, core.NewError(core.ErrParseFailure, nil, "malformed unknown field %d", num)
			}
			b = b[n:]
		}
	}
	body, err := decodeBody(m.Type, bodyBytes)
	if err != nil {
		return nil, err
	}
	m.Body = body
	return m, nil
}
