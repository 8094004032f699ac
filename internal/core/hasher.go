package core

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"path/filepath"
	"sort"
)

// Identity is the deterministic identifier of an artifact.
//
// Derived identities cover:
//   - the producing stage name
//   - the sample (or sample-set) the artifact belongs to
//   - the identities of every input artifact, sorted
//
// Any change to these components produces a different Identity.
type Identity string

// String returns the hex form of the identity.
func (id Identity) String() string {
	return string(id)
}

// Short returns the first twelve hex characters, for log lines and path labels.
func (id Identity) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// identityHasher writes length-prefixed fields into a sha256 digest so that
// concatenated fields can never collide ("ab"+"c" vs "a"+"bc").
type identityHasher struct {
	h hash.Hash
}

func newIdentityHasher() *identityHasher {
	return &identityHasher{h: sha256.New()}
}

func (w *identityHasher) writeField(data []byte) {
	// 8-byte big-endian length prefix
	length := uint64(len(data))
	w.h.Write([]byte{
		byte(length >> 56),
		byte(length >> 48),
		byte(length >> 40),
		byte(length >> 32),
		byte(length >> 24),
		byte(length >> 16),
		byte(length >> 8),
		byte(length),
	})
	w.h.Write(data)
}

func (w *identityHasher) writeString(s string) {
	w.writeField([]byte(s))
}

func (w *identityHasher) writeCount(n int) {
	w.writeField([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}

func (w *identityHasher) sum() Identity {
	return Identity(hex.EncodeToString(w.h.Sum(nil)))
}

// SourceIdentity computes the identity of a caller-supplied file. It depends
// only on the role and the cleaned absolute-or-relative host path, never on
// file contents, so describing an artifact never touches the filesystem.
func SourceIdentity(role Role, hostPath string) Identity {
	w := newIdentityHasher()
	w.writeString("source")
	w.writeString(string(role))
	w.writeString(filepath.Clean(hostPath))
	return w.sum()
}

// DerivedIdentity computes the identity of a stage output from the stage
// name, the sample key, and the identities of its inputs. Input order does
// not matter: identities are sorted before hashing.
func DerivedIdentity(stage, sample string, inputs []Identity) Identity {
	sorted := make([]string, len(inputs))
	for i, in := range inputs {
		sorted[i] = string(in)
	}
	sort.Strings(sorted)

	w := newIdentityHasher()
	w.writeString("derived")
	w.writeString(stage)
	w.writeString(sample)
	w.writeCount(len(sorted))
	for _, in := range sorted {
		w.writeString(in)
	}
	return w.sum()
}

// SampleSetDigest returns a stable digest of a set of sample names. Callers use
// it to label cohort-level outputs so that a changed sample set never reuses
// the previous cohort's artifact path.
func SampleSetDigest(samples []string) Identity {
	sorted := append([]string(nil), samples...)
	sort.Strings(sorted)

	w := newIdentityHasher()
	w.writeString("sample-set")
	w.writeCount(len(sorted))
	for _, s := range sorted {
		w.writeString(s)
	}
	return w.sum()
}
