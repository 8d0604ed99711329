package domain

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SecondaryRole describes why a secondary KEK is loaded.
type SecondaryRole string

const (
	// RoleNone means no secondary key is loaded.
	RoleNone SecondaryRole = ""
	// RoleStaged marks a freshly generated key that rotation is rewrapping records under.
	RoleStaged SecondaryRole = "staged"
	// RoleRetiring marks the previous primary kept readable during the grace period.
	RoleRetiring SecondaryRole = "retiring"
)

// ParseSecondaryRole parses KEK_SECONDARY_ROLE.
func ParseSecondaryRole(s string) (SecondaryRole, error) {
	switch SecondaryRole(s) {
	case RoleStaged, RoleRetiring:
		return SecondaryRole(s), nil
	default:
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidSecondaryRole, s)
	}
}

// keySet is an immutable snapshot. KeyMaterial swaps whole snapshots so readers
// never observe a primary from one generation paired with a secondary from another.
type keySet struct {
	primary   []byte
	secondary []byte
	role      SecondaryRole
}

// KeyMaterial holds the process-wide KEKs.
//
// Reads are lock-free through an atomic pointer. Only the rotation sequence calls
// the mutators (SetSecondary, Rotate, RetireSecondaryAfter); request handlers only read.
// Returned key slices are shared with the snapshot and must not be modified.
type KeyMaterial struct {
	keys atomic.Pointer[keySet]

	timerMu    sync.Mutex
	graceTimer *time.Timer
}

// NewKeyMaterial creates KeyMaterial with the given primary and no secondary.
func NewKeyMaterial(primary []byte) (*KeyMaterial, error) {
	if len(primary) != KeySize {
		return nil, fmt.Errorf("%w: primary key must be %d bytes, got %d", ErrInvalidKeySize, KeySize, len(primary))
	}
	km := &KeyMaterial{}
	km.keys.Store(&keySet{primary: bytes.Clone(primary)})
	return km, nil
}

// LoadKeyMaterial builds KeyMaterial from hex encoded env values. secondaryHex may be empty.
func LoadKeyMaterial(primaryHex, secondaryHex string, role SecondaryRole) (*KeyMaterial, error) {
	if strings.TrimSpace(primaryHex) == "" {
		return nil, ErrNoPrimaryKey
	}
	primary, err := DecodeKeyHex(primaryHex)
	if err != nil {
		return nil, fmt.Errorf("KEK_PRIMARY: %w", err)
	}
	defer Zero(primary)

	km, err := NewKeyMaterial(primary)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(secondaryHex) == "" {
		return km, nil
	}
	secondary, err := DecodeKeyHex(secondaryHex)
	if err != nil {
		return nil, fmt.Errorf("KEK_SECONDARY: %w", err)
	}
	defer Zero(secondary)
	if role == RoleNone {
		role = RoleRetiring
	}
	if err := km.SetSecondary(secondary, role); err != nil {
		return nil, err
	}
	return km, nil
}

// Primary returns the active KEK.
func (k *KeyMaterial) Primary() []byte {
	return k.keys.Load().primary
}

// Secondary returns the secondary KEK and its role, or nil and RoleNone.
func (k *KeyMaterial) Secondary() ([]byte, SecondaryRole) {
	ks := k.keys.Load()
	return ks.secondary, ks.role
}

// PrimaryHex returns the active KEK hex encoded, as printed for operators.
func (k *KeyMaterial) PrimaryHex() string {
	return hex.EncodeToString(k.Primary())
}

// SetSecondary replaces the secondary KEK. A nil key clears it.
func (k *KeyMaterial) SetSecondary(key []byte, role SecondaryRole) error {
	if key != nil && len(key) != KeySize {
		return fmt.Errorf("%w: secondary key must be %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	for {
		cur := k.keys.Load()
		next := &keySet{primary: cur.primary}
		if key != nil {
			next.secondary = bytes.Clone(key)
			next.role = role
		}
		if k.keys.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Rotate promotes newHex to primary and demotes the current primary to a retiring
// secondary. oldHex must equal the current primary, which guards against two
// rotations racing on the same process.
func (k *KeyMaterial) Rotate(oldHex, newHex string) error {
	oldKey, err := DecodeKeyHex(oldHex)
	if err != nil {
		return err
	}
	defer Zero(oldKey)
	newKey, err := DecodeKeyHex(newHex)
	if err != nil {
		return err
	}
	defer Zero(newKey)

	cur := k.keys.Load()
	if subtle.ConstantTimeCompare(cur.primary, oldKey) != 1 {
		return ErrPrimaryKeyMismatch
	}
	next := &keySet{
		primary:   bytes.Clone(newKey),
		secondary: cur.primary,
		role:      RoleRetiring,
	}
	if !k.keys.CompareAndSwap(cur, next) {
		return ErrPrimaryKeyMismatch
	}
	return nil
}

// RetireSecondaryAfter discards the retiring secondary once d elapses, unless it has
// been replaced in the meantime. A later call replaces a pending timer.
func (k *KeyMaterial) RetireSecondaryAfter(d time.Duration) {
	secondary, role := k.Secondary()
	if secondary == nil || role != RoleRetiring {
		return
	}
	fingerprint := Fingerprint(secondary)

	k.timerMu.Lock()
	defer k.timerMu.Unlock()
	if k.graceTimer != nil {
		k.graceTimer.Stop()
	}
	k.graceTimer = time.AfterFunc(d, func() {
		cur, curRole := k.Secondary()
		if cur == nil || curRole != RoleRetiring || Fingerprint(cur) != fingerprint {
			return
		}
		_ = k.SetSecondary(nil, RoleNone)
	})
}

// Close stops a pending grace timer.
func (k *KeyMaterial) Close() {
	k.timerMu.Lock()
	defer k.timerMu.Unlock()
	if k.graceTimer != nil {
		k.graceTimer.Stop()
		k.graceTimer = nil
	}
}

// GenerateKey returns a cryptographically random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// DecodeKeyHex decodes and size-checks a hex encoded KEK.
func DecodeKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	if len(key) != KeySize {
		Zero(key)
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	return key, nil
}

// Fingerprint identifies a key without revealing it: the first 8 bytes of its SHA-256, hex encoded.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// Zero securely overwrites a byte slice with zeros to clear sensitive data from memory.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
