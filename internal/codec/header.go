// Package codec frames a spilled value as an 8-byte absolute-expiry header
// followed by an opaque payload.
package codec

import "encoding/binary"

// HeaderSize is the fixed width of the expiry_ms prefix stored ahead of
// every payload in the store.
const HeaderSize = 8

// Frame allocates a contiguous buffer holding expiryMs encoded as a
// little-endian signed 64-bit integer followed by payload.
func Frame(expiryMs int64, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	PutExpiry(buf, expiryMs)
	copy(buf[HeaderSize:], payload)
	return buf
}

// PutExpiry writes expiryMs into the first HeaderSize bytes of buf.
// buf must be at least HeaderSize bytes long.
func PutExpiry(buf []byte, expiryMs int64) {
	binary.LittleEndian.PutUint64(buf[:HeaderSize], uint64(expiryMs))
}

// DecodeExpiry reads the expiry_ms field out of a raw stored value.
// It returns false if v is shorter than HeaderSize.
func DecodeExpiry(v []byte) (expiryMs int64, ok bool) {
	if len(v) < HeaderSize {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v[:HeaderSize])), true
}

// Payload returns the bytes of v following the header. It does not copy.
// v must be at least HeaderSize bytes; callers should check with DecodeExpiry
// or len(v) first.
func Payload(v []byte) []byte {
	if len(v) <= HeaderSize {
		return nil
	}
	return v[HeaderSize:]
}

// Expired reports whether expiryMs denotes an entry that is logically gone
// as of nowMs. expiryMs <= 0 means "no expiry" and is never expired.
func Expired(expiryMs, nowMs int64) bool {
	return expiryMs > 0 && expiryMs <= nowMs
}
