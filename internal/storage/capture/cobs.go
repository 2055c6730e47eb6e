package capture

// ============================================================================
// Byte stuffing
//
// A stuffed frame never contains the delimiter. Every zero byte of the
// payload is replaced by the distance to the next zero (or to the end of the
// frame), and the distance to the first one is stored in a leading byte:
//
//   payload:  11 00 22 33 00 44
//   stuffed:  02 11 03 22 33 02 44
//             ^^    ^^       ^^
//             |     |        └─ 2 to end of frame
//             |     └─ 3 to next zero
//             └─ offset of first zero
//
// A jump is at most 255, so a payload run of 255 non-zero bytes or more
// cannot be stuffed.
// ============================================================================

// Unstuff recovers the payload of one stuffed frame. The chain must end
// exactly on the frame end; anything else means the frame was damaged and
// its bytes cannot be trusted. The input is not modified.
func Unstuff(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrBrokenChain
	}

	out := make([]byte, len(frame))
	copy(out, frame)

	at := int(out[0])
	for at < len(out) {
		jump := int(out[at])
		if jump == 0 {
			return nil, ErrZeroJump
		}
		out[at] = 0
		at += jump
	}
	if at != len(out) {
		return nil, ErrBrokenChain
	}

	return out[1:], nil
}

// Stuff is the inverse of Unstuff.
func Stuff(payload []byte) ([]byte, error) {
	out := make([]byte, len(payload)+1)
	copy(out[1:], payload)

	last := 0
	for k := 1; k < len(out); k++ {
		if out[k] != 0 {
			continue
		}
		if k-last > 255 {
			return nil, ErrRunTooLong
		}
		out[last] = byte(k - last)
		last = k
	}
	if len(out)-last > 255 {
		return nil, ErrRunTooLong
	}
	out[last] = byte(len(out) - last)

	return out, nil
}

// AppendFrame stuffs payload and appends it, followed by the delimiter, to dst.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	stuffed, err := Stuff(payload)
	if err != nil {
		return dst, err
	}
	dst = append(dst, stuffed...)
	return append(dst, Delimiter), nil
}
