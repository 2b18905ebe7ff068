package cryptox

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/psylog/internal/common"
	"golang.org/x/crypto/argon2"
)

const pinScheme = "argon2id"

func pinDigest(pin, salt []byte) []byte {
	return argon2.IDKey(pin, salt, 1, 64*1024, 4, 32)
}

// HashPin returns a salted digest of pin encoded as
// "argon2id$<salt-hex>$<digest-hex>". The raw PIN is never stored.
func HashPin(pin string) string {
	salt := common.GenerateRandByteArray(SaltSize)
	digest := pinDigest([]byte(pin), salt)
	return strings.Join([]string{pinScheme, hex.EncodeToString(salt), hex.EncodeToString(digest)}, "$")
}

// VerifyPin checks pin against an encoded hash in constant time.
func VerifyPin(pin, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != pinScheme {
		return false, fmt.Errorf("%w: unrecognised pin hash format", common.ErrCrypto)
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("%w: pin salt: %v", common.ErrCrypto, err)
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("%w: pin digest: %v", common.ErrCrypto, err)
	}
	got := pinDigest([]byte(pin), salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
