package layout

import (
	"encoding/hex"
	"errors"
)

var errInvalidAESType = errors.New("invalid aes type")

// decodeHexInto hex-decodes src into dst, requiring an exact length match;
// this mirrors the original's byte-pair-at-a-time std::stoul decode of
// imageid/hmac hex strings.
func decodeHexInto(src string, dst []byte) error {
	if len(src) != len(dst)*2 {
		return errors.New("hex string length does not match destination")
	}
	n, err := hex.Decode(dst, []byte(src))
	if err != nil {
		return err
	}
	if n != len(dst) {
		return errors.New("short hex decode")
	}
	return nil
}
