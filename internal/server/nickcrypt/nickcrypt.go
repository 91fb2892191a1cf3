// Package nickcrypt implements the reversible nickname encoding carried
// by the document store's encryptedNickname field. The format — base64 of
// "{userID}:{nickname}" — is a data contract with documents written by
// earlier migrations; it is an obfuscation, not cryptography.
package nickcrypt

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/penter405/cubetimer-backend/internal/common"
)

// Encode returns the stored form of a nickname salted with the user ID.
// An empty nickname encodes to the empty string.
func Encode(nickname string, userID int) string {
	if nickname == "" {
		return ""
	}
	combined := strconv.Itoa(userID) + ":" + nickname
	return base64.StdEncoding.EncodeToString([]byte(combined))
}

// Decode reverses Encode, verifying the embedded salt matches userID.
func Decode(encoded string, userID int) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode nickname: %w", common.ErrCorruptRecord)
	}

	salt, nickname, ok := strings.Cut(string(raw), ":")
	if !ok || salt != strconv.Itoa(userID) {
		return "", fmt.Errorf("nickname salt mismatch: %w", common.ErrCorruptRecord)
	}
	return nickname, nil
}
