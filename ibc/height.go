package ibc

import "fmt"

// Height is a revision-scoped block height. Heights order
// lexicographically on (RevisionNumber, RevisionHeight). The zero value
// means "latest available" in query contexts.
type Height struct {
	RevisionNumber uint64
	RevisionHeight uint64
}

// ZeroHeight returns the "latest available" sentinel.
func ZeroHeight() Height { return Height{} }

// NewHeight returns the height (revision, height).
func NewHeight(revision, height uint64) Height {
	return Height{RevisionNumber: revision, RevisionHeight: height}
}

func (h Height) IsZero() bool {
	return h.RevisionNumber == 0 && h.RevisionHeight == 0
}

// Compare orders heights lexicographically, returning -1, 0 or 1.
func (h Height) Compare(other Height) int {
	if h.RevisionNumber != other.RevisionNumber {
		if h.RevisionNumber < other.RevisionNumber {
			return -1
		}
		return 1
	}
	if h.RevisionHeight != other.RevisionHeight {
		if h.RevisionHeight < other.RevisionHeight {
			return -1
		}
		return 1
	}
	return 0
}

// Increment returns the next height within the same revision.
func (h Height) Increment() Height {
	return Height{RevisionNumber: h.RevisionNumber, RevisionHeight: h.RevisionHeight + 1}
}

func (h Height) String() string {
	return fmt.Sprintf("%d-%d", h.RevisionNumber, h.RevisionHeight)
}
