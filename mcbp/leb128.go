package mcbp

// maxLEB128Len is the longest encoding of a 32-bit collection id.
const maxLEB128Len = 5

// DecodeLEB128 decodes an unsigned LEB128 value from the start of b and
// returns it with the number of bytes consumed.
func DecodeLEB128(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < len(b) && i < maxLEB128Len; i++ {
		if i == maxLEB128Len-1 && b[i] > 0x0f {
			return 0, 0, protocolErrorf("leb128 value exceeds 32 bits")
		}
		v |= uint32(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	if len(b) < maxLEB128Len {
		return 0, 0, protocolErrorf("truncated leb128 value")
	}
	return 0, 0, protocolErrorf("leb128 value exceeds 32 bits")
}

// AppendLEB128 appends the unsigned LEB128 encoding of v to dst.
func AppendLEB128(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// StripCollectionPrefix removes the LEB128 collection id that prefixes a key
// when collections are enabled, returning the id and the bare key.
func StripCollectionPrefix(key []byte) (uint32, []byte, error) {
	cid, n, err := DecodeLEB128(key)
	if err != nil {
		return 0, nil, err
	}
	return cid, key[n:], nil
}
