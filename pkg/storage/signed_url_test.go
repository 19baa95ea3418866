package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, expiresAt, err := signer.Generate("proof-1", "2024/05/proof-1.jpg")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	proofID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "proof-1", proofID)
	assert.Equal(t, "2024/05/proof-1.jpg", relPath)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, _, err := signer.Generate("proof-1", "2024/05/proof-1.jpg")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	require.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestSignedURLRejectsExpired(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("proof-1", "a.jpg")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}

func TestSignedURLRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	_, _, err := signer.Generate("", "a.jpg")
	require.Error(t, err)
	_, _, err = signer.Generate("proof-1", "")
	require.Error(t, err)
}
