package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)

	assert.True(t, Verify("correct horse", encoded))
	assert.False(t, Verify("wrong horse", encoded))
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	assert.False(t, Verify("x", ""))
	assert.False(t, Verify("x", "$2a$10$bcrypt-style"))
	assert.False(t, Verify("x", "$argon2id$v=19$m=bad$salt$hash"))
}

func TestNeedsRehash(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)
	assert.False(t, NeedsRehash(encoded))

	weaker := strings.Replace(encoded, "m=65536,", "m=32768,", 1)
	assert.True(t, NeedsRehash(weaker))
	assert.False(t, Verify("correct horse", weaker))
	assert.True(t, NeedsRehash("$2a$10$bcrypt-style"))
}
