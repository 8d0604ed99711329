package service

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
)

func newTestEnvelope(t *testing.T, alg cryptoDomain.Algorithm) (*EnvelopeService, *cryptoDomain.KeyMaterial) {
	t.Helper()
	primary, err := cryptoDomain.GenerateKey()
	require.NoError(t, err)
	km, err := cryptoDomain.NewKeyMaterial(primary)
	require.NoError(t, err)
	return NewEnvelopeService(km, alg, NewAEADManager()), km
}

func TestEnvelopeService_RoundTrip(t *testing.T) {
	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			svc, _ := newTestEnvelope(t, alg)
			plaintext := []byte(`{"host":"smtp.x.com","port":587}`)

			env, err := svc.EncryptEnvelope(plaintext)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(env.Ciphertext, string(alg)+":"))
			assert.True(t, strings.HasPrefix(env.WrappedDek, string(alg)+":"))
			assert.NotContains(t, env.Ciphertext, "smtp.x.com")

			got, err := svc.DecryptEnvelope(env.Ciphertext, env.WrappedDek)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestEnvelopeService_AlgorithmChangeKeepsOldRecordsReadable(t *testing.T) {
	svc, km := newTestEnvelope(t, cryptoDomain.AESGCM)
	env, err := svc.EncryptEnvelope([]byte("payload"))
	require.NoError(t, err)

	chacha := NewEnvelopeService(km, cryptoDomain.ChaCha20, NewAEADManager())
	got, err := chacha.DecryptEnvelope(env.Ciphertext, env.WrappedDek)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestEnvelopeService_SecondaryFallback(t *testing.T) {
	svc, km := newTestEnvelope(t, cryptoDomain.AESGCM)
	oldHex := km.PrimaryHex()

	env, err := svc.EncryptEnvelope([]byte("payload"))
	require.NoError(t, err)

	newKey, err := svc.GenerateKey()
	require.NoError(t, err)
	newHex := hex.EncodeToString(newKey)
	require.NoError(t, km.SetSecondary(newKey, cryptoDomain.RoleStaged))

	rewrapped, err := svc.RewrapDek(env.WrappedDek, oldHex, newHex)
	require.NoError(t, err)
	assert.NotEqual(t, env.WrappedDek, rewrapped)

	t.Run("staged secondary resolves rewrapped dek", func(t *testing.T) {
		got, err := svc.DecryptEnvelope(env.Ciphertext, rewrapped)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	})

	t.Run("after promotion old wraps resolve via retiring secondary", func(t *testing.T) {
		require.NoError(t, km.Rotate(oldHex, newHex))
		got, err := svc.DecryptEnvelope(env.Ciphertext, env.WrappedDek)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	})

	t.Run("both keys failing is a decryption failure", func(t *testing.T) {
		require.NoError(t, km.SetSecondary(nil, cryptoDomain.RoleNone))
		_, err := svc.DecryptEnvelope(env.Ciphertext, env.WrappedDek)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestEnvelopeService_RewrapDek(t *testing.T) {
	svc, km := newTestEnvelope(t, cryptoDomain.AESGCM)
	oldHex := km.PrimaryHex()
	newKey, err := svc.GenerateKey()
	require.NoError(t, err)
	newHex := hex.EncodeToString(newKey)

	env, err := svc.EncryptEnvelope([]byte("payload"))
	require.NoError(t, err)

	rewrapped, err := svc.RewrapDek(env.WrappedDek, oldHex, newHex)
	require.NoError(t, err)
	assert.True(t, svc.WrappedUnder(rewrapped, newHex))
	assert.False(t, svc.WrappedUnder(rewrapped, oldHex))

	t.Run("rewrapping twice is idempotent", func(t *testing.T) {
		again, err := svc.RewrapDek(rewrapped, newHex, newHex)
		require.NoError(t, err)
		require.NoError(t, km.Rotate(oldHex, newHex))
		got, err := svc.DecryptEnvelope(env.Ciphertext, again)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	})

	t.Run("wrong old key", func(t *testing.T) {
		_, err := svc.RewrapDek(env.WrappedDek, newHex, oldHex)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("bad hex", func(t *testing.T) {
		_, err := svc.RewrapDek(env.WrappedDek, "nothex", newHex)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeyEncoding)
	})

	t.Run("malformed dek", func(t *testing.T) {
		_, err := svc.RewrapDek("garbage", oldHex, newHex)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})
}

func TestEnvelopeService_DirectKEKFields(t *testing.T) {
	svc, km := newTestEnvelope(t, cryptoDomain.ChaCha20)
	oldHex := km.PrimaryHex()

	sealed, err := svc.EncryptWithKEK([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	got, err := svc.DecryptWithKEK(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("JBSWY3DPEHPK3PXP"), got)

	newKey, err := svc.GenerateKey()
	require.NoError(t, err)
	newHex := hex.EncodeToString(newKey)

	rewrapped, err := svc.RewrapCiphertext(sealed, oldHex, newHex)
	require.NoError(t, err)
	assert.True(t, svc.CiphertextUnder(rewrapped, newHex))

	t.Run("dek and field purposes do not mix", func(t *testing.T) {
		_, err := svc.RewrapDek(sealed, oldHex, newHex)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	require.NoError(t, km.Rotate(oldHex, newHex))
	got, err = svc.DecryptWithKEK(rewrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("JBSWY3DPEHPK3PXP"), got)
}

func TestEnvelopeService_MalformedInput(t *testing.T) {
	svc, _ := newTestEnvelope(t, cryptoDomain.AESGCM)
	env, err := svc.EncryptEnvelope([]byte("payload"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
		wrappedDek string
	}{
		{name: "no prefix", ciphertext: env.Ciphertext, wrappedDek: "abc"},
		{name: "unknown algorithm", ciphertext: env.Ciphertext, wrappedDek: "des:" + strings.SplitN(env.WrappedDek, ":", 2)[1]},
		{name: "bad base64", ciphertext: env.Ciphertext, wrappedDek: "aes-gcm:!!!"},
		{name: "tampered body", ciphertext: env.Ciphertext[:len(env.Ciphertext)-4] + "AAAA", wrappedDek: env.WrappedDek},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DecryptEnvelope(tt.ciphertext, tt.wrappedDek)
			assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
		})
	}
}
