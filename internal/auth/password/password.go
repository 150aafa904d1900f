// Package password stores credentials as PHC-formatted Argon2id strings:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MinLength is enforced at registration and for the seeded admin.
const MinLength = 8

var errMalformed = errors.New("malformed argon2id hash")

type params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

var current = params{memory: 64 * 1024, time: 1, threads: 4, keyLen: 32}

const saltLen = 16

var b64 = base64.RawStdEncoding

// Hash derives a key with a fresh random salt under the current parameters.
func Hash(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	key := current.derive(plain, salt)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, current.memory, current.time, current.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether plain matches encoded. Parameters come from the
// stored string, so raising the cost does not invalidate old hashes.
func Verify(plain, encoded string) bool {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, p.derive(plain, salt)) == 1
}

// NeedsRehash reports whether encoded was produced under parameters other
// than the current ones.
func NeedsRehash(encoded string) bool {
	p, _, _, err := decode(encoded)
	return err != nil || p != current
}

func (p params) derive(plain string, salt []byte) []byte {
	return argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.threads, p.keyLen)
}

func decode(encoded string) (params, []byte, []byte, error) {
	var p params
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, nil, nil, errMalformed
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errMalformed
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, errMalformed
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, nil, errMalformed
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errMalformed
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errMalformed
	}
	p.keyLen = uint32(len(key))
	return p, salt, key, nil
}
