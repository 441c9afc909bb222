package util

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"hash"

	"github.com/google/uuid"
)

// RowDigest hashes decoded rows as they stream past. Its Row method
// satisfies png.RowFunc.
type RowDigest struct {
	h hash.Hash
	n int64
}

func NewRowDigest() *RowDigest { return &RowDigest{h: md5.New()} }

func (d *RowDigest) Row(row []byte, _, _ int) error {
	d.h.Write(row)
	d.n += int64(len(row))
	return nil
}

// Len is the number of bytes hashed.
func (d *RowDigest) Len() int64 { return d.n }

// Hex is the md5 of every row so far.
func (d *RowDigest) Hex() string { return hex.EncodeToString(d.h.Sum(nil)) }

// ContentUUID derives a stable UUID from the JSON form of value.
func ContentUUID(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(raw)
	id, err := uuid.FromBytes(sum[:])
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
