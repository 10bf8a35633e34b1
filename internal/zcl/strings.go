package zcl

// MaxStringLen is the longest character string a one-byte length prefix allows.
const MaxStringLen = 254

// EncodeString returns s as a ZCL character string: one length byte followed
// by the bytes, without a terminator. Longer strings are cut at MaxStringLen.
func EncodeString(s string) []byte {
	b := []byte(s)
	if len(b) > MaxStringLen {
		b = b[:MaxStringLen]
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, byte(len(b)))
	return append(out, b...)
}

// DecodeString parses a ZCL character string. ok is false when the length
// prefix runs past the buffer.
func DecodeString(b []byte) (s string, ok bool) {
	if len(b) == 0 {
		return "", false
	}
	n := int(b[0])
	if n == 0xff {
		return "", true
	}
	if len(b) < 1+n {
		return "", false
	}
	return string(b[1 : 1+n]), true
}
