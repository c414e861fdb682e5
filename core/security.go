// Package core – cryptographic primitives consumed by the Validator.
//
// Exposes:
//   - ComputeMessageHash – blake3-20 over canonical body bytes.
//   - VerifyEd25519 / RecoverEip712Signer – signature verification dispatch.
//
// All crypto comes from go-ethereum (EIP-712/secp256k1 recovery), the Go
// std-lib (Ed25519), and lukechampine.com/blake3.
package core

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"
)

// ComputeMessageHash returns the first 20 bytes of blake3-256(canonical).
func ComputeMessageHash(canonical []byte) MessageHash {
	sum := blake3.Sum256(canonical)
	var h MessageHash
	copy(h[:], sum[:20])
	return h
}

// CanonicalizeBody produces a deterministic byte encoding of a message's
// (fid, network, timestamp, type, body) tuple for hashing and signing.
// Field order is fixed by this function rather than relying on struct tag
// ordering of a generic marshaler, so canonicalization does not depend on
// an external encoding library's stability guarantees.
func CanonicalizeBody(fid Fid, network string, timestamp uint32, mt MessageType, body Body) []byte {
	buf := make([]byte, 0, 128)
	buf = appendUint64BE(buf, uint64(fid))
	buf = appendUint32BE(buf, uint32(len(network)))
	buf = append(buf, network...)
	buf = appendUint32BE(buf, timestamp)
	buf = append(buf, byte(mt))
	buf = appendBodyBytes(buf, mt, body)
	return buf
}

func appendBodyBytes(buf []byte, mt MessageType, body Body) []byte {
	appendStr := func(s string) {
		buf = appendUint32BE(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	appendBytes := func(b []byte) {
		buf = appendUint32BE(buf, uint32(len(b)))
		buf = append(buf, b...)
	}
	switch mt {
	case CastAdd:
		c := body.Cast
		appendStr(c.Text)
		buf = appendUint32BE(buf, uint32(len(c.Mentions)))
		for _, m := range c.Mentions {
			buf = appendUint64BE(buf, uint64(m))
		}
		if c.ParentCastHash != nil {
			buf = append(buf, 1)
			appendBytes(c.ParentCastHash[:])
		} else {
			buf = append(buf, 0)
		}
		appendStr(c.ParentURL)
		buf = appendUint32BE(buf, uint32(len(c.Embeds)))
		for _, e := range c.Embeds {
			appendStr(e)
		}
	case CastRemove:
		appendBytes(body.Cast.TargetHash[:])
	case ReactionAdd, ReactionRemove:
		r := body.Reaction
		buf = append(buf, r.Type)
		appendBytes(r.TargetCastHash[:])
		buf = appendUint64BE(buf, uint64(r.TargetFid))
	case LinkAdd, LinkRemove, LinkCompactState:
		l := body.Link
		appendStr(l.Type)
		buf = appendUint64BE(buf, uint64(l.TargetFid))
		if l.DisplayTimestamp != nil {
			buf = append(buf, 1)
			buf = appendUint32BE(buf, *l.DisplayTimestamp)
		} else {
			buf = append(buf, 0)
		}
	case VerificationAdd, VerificationRemove:
		v := body.Verification
		appendBytes(v.Address[:])
		appendBytes(v.ClaimSignature)
		appendBytes(v.BlockHash[:])
		buf = append(buf, v.VerificationType)
	case UserDataAdd:
		u := body.UserData
		buf = append(buf, u.Type)
		appendStr(u.Value)
	case UsernameProofType:
		p := body.UsernameProof
		appendStr(p.Name)
		appendBytes(p.Owner[:])
		buf = appendUint32BE(buf, p.Timestamp)
	}
	return buf
}

// VerifyEd25519 checks sig over hash using a 32-byte ed25519 public key.
func VerifyEd25519(pub [32]byte, hash MessageHash, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), hash[:], sig)
}

// Eip712Domain is the typed-data domain an EIP-712 signature is recovered
// under.
type Eip712Domain struct {
	Name    string
	Version string
	ChainID uint64
}

// messageEip712Domain is the domain a message signed directly by a custody
// Ethereum key (rather than a delegated ed25519 app key) is recovered
// against (§4.2 step 3-4).
var messageEip712Domain = Eip712Domain{Name: "Farcaster Verify Ethereum Address", Version: "2", ChainID: 10}

// RecoverEip712Signer builds the EIP-712 digest "\x19\x01" || domainSeparator
// || structHash for a (message hash, domain) pair and recovers the signer
// address from sig. Returns the recovered 20-byte address.
func RecoverEip712Signer(domain Eip712Domain, hash MessageHash, sig []byte) ([20]byte, error) {
	digest := eip712Digest(domain, hash)
	if len(sig) != 65 {
		return [20]byte{}, fmt.Errorf("eip712: signature must be 65 bytes, got %d", len(sig))
	}
	// go-ethereum's Ecrecover expects the recovery id in the last byte as
	// 0/1; EIP-712 wallets commonly emit 27/28, so normalize.
	normSig := make([]byte, 65)
	copy(normSig, sig)
	if normSig[64] >= 27 {
		normSig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest[:], normSig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("eip712: recover: %w", err)
	}
	addr := ethcrypto.PubkeyToAddress(*pub)
	var out [20]byte
	copy(out[:], addr[:])
	return out, nil
}

func eip712Digest(domain Eip712Domain, hash MessageHash) [32]byte {
	domainType := ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	nameHash := ethcrypto.Keccak256([]byte(domain.Name))
	versionHash := ethcrypto.Keccak256([]byte(domain.Version))
	var chainID [32]byte
	binary.BigEndian.PutUint64(chainID[24:], domain.ChainID)
	domainSeparator := ethcrypto.Keccak256(domainType, nameHash, versionHash, chainID[:])

	msgType := ethcrypto.Keccak256([]byte("MessageData(bytes32 hash)"))
	structHash := ethcrypto.Keccak256(msgType, hash[:])

	payload := append([]byte{0x19, 0x01}, domainSeparator...)
	payload = append(payload, structHash...)
	digestBytes := ethcrypto.Keccak256(payload)
	var digest [32]byte
	copy(digest[:], digestBytes)
	return digest
}
