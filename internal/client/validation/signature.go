package validation

import (
	"bytes"
	"encoding/hex"
)

// signatures are the leading bytes of the image containers we accept.
var signatures = map[string][]byte{
	"jpeg": mustHex("ffd8ff"),
	"png":  mustHex("89504e47"),
	"webp": mustHex("52494646"),
	"gif":  mustHex("47494638"),
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// matchSignature returns the container name for head, or "".
func matchSignature(head []byte) string {
	for name, sig := range signatures {
		if bytes.HasPrefix(head, sig) {
			return name
		}
	}
	return ""
}
