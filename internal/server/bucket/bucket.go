// Package bucket implements the sharding scheme that maps an identity
// string to a fixed storage location inside a sheet. A sheet with N
// columns and f fields per record holds floor(N/f) buckets; a key always
// hashes to the same bucket for a fixed bucket count.
//
// Changing a sheet's column capacity changes the bucket count and
// invalidates every previously computed address. Callers that derive the
// bucket count from live sheet metadata must re-check it before writing
// (see directory.Service) and treat a mismatch as ErrCapacityDrift.
package bucket

import (
	"unicode/utf16"

	"github.com/penter405/cubetimer-backend/internal/common"
	"github.com/penter405/cubetimer-backend/internal/server/tablestore"
)

// Index returns the bucket owned by key in [0, bucketCount).
//
// The hash is the classic h = h*31 + c polynomial with 32-bit wraparound,
// computed over the key's UTF-16 code units — surrogate pairs hash as two
// units, not one code point. This exact function is a layout contract
// with the existing sheets: swapping it for another hash, or hashing
// runes instead of UTF-16 units, would move stored records to a
// different bucket.
func Index(key string, bucketCount int) (int, error) {
	if bucketCount <= 0 {
		return 0, common.ErrInvalidInput
	}

	var h int32
	for _, c := range utf16.Encode([]rune(key)) {
		h = (h << 5) - h + int32(c)
	}

	// Widen before negating so the minimum int32 does not overflow.
	v := int64(h)
	if v < 0 {
		v = -v
	}

	return int(v % int64(bucketCount)), nil
}

// Span returns the column range owned by a bucket in a sheet storing
// fieldsPerRecord columns per record. Bucket 5 with 3 fields per record
// owns columns 15..17.
func Span(sheet string, bucket, fieldsPerRecord int) tablestore.ColumnSpan {
	start := bucket * fieldsPerRecord
	return tablestore.ColumnSpan{
		Sheet: sheet,
		Start: start,
		End:   start + fieldsPerRecord - 1,
	}
}

// Count derives the bucket count from a sheet's column capacity.
func Count(columnCount, fieldsPerRecord int) int {
	return columnCount / fieldsPerRecord
}
