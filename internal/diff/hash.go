package diff

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"log/slog"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
)

// HashDiffer treats the snapshot as one document: if its SHA-256 over the JSON
// encoding changed, the whole new snapshot is the changeset.
type HashDiffer struct{}

func NewHashDiffer() *HashDiffer {
	return &HashDiffer{}
}

func (d *HashDiffer) Diff(old, new *domain.Snapshot) *domain.Changeset {
	if new == nil {
		return nil
	}

	if old != nil {
		oldSum, err := documentHash(old)
		if err != nil {
			slog.Warn("Failed to hash previous snapshot", "error", err)
		}
		newSum, err := documentHash(new)
		if err != nil {
			slog.Warn("Failed to hash snapshot", "error", err)
		}
		if oldSum != nil && bytes.Equal(oldSum, newSum) {
			return nil
		}
	}

	cs := new.AsChangeset()
	if cs.Empty() {
		return nil
	}
	return cs
}

func documentHash(s *domain.Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}
