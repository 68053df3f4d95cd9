package keystore

import (
	"errors"
	"time"

	"github.com/glinharesb/sicrypto/internal/sig"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyInactive = errors.New("key is not active")
)

// KeyStatus represents the lifecycle state of a key.
type KeyStatus int

const (
	StatusActive KeyStatus = iota + 1
	StatusRotated
	StatusDeactivated
)

func (s KeyStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusRotated:
		return "ROTATED"
	case StatusDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus maps a status name back to its KeyStatus. The empty string
// and unknown names give 0, which List treats as "any".
func ParseStatus(s string) KeyStatus {
	switch s {
	case "ACTIVE":
		return StatusActive
	case "ROTATED":
		return StatusRotated
	case "DEACTIVATED":
		return StatusDeactivated
	}
	return 0
}

// KeyEntry holds a signing key and its metadata.
type KeyEntry struct {
	ID     string
	Status KeyStatus
	Key    *sig.PrivateKey
	// Public is derived from Key when the entry is created.
	Public *sig.PublicKey
	// Curve and Bits record the generation parameters so rotation can
	// repeat them.
	Curve     string
	Bits      int
	CreatedAt time.Time
	RotatedAt time.Time
	// Successor is the key that replaced this one on rotation.
	Successor string
	Labels    map[string]string
}

// Algorithm returns the name of the entry's signature algorithm.
func (e *KeyEntry) Algorithm() string {
	return e.Key.Def.Name()
}

// Store defines the key storage interface.
type Store interface {
	Put(entry *KeyEntry) error
	Get(id string) (*KeyEntry, error)
	List(filter KeyStatus) ([]*KeyEntry, error)
	UpdateStatus(id string, status KeyStatus) error
	// Rotate marks id as rotated in favour of successor, which must
	// already be stored.
	Rotate(id, successor string, at time.Time) error
	Delete(id string) error
}
