package txn

import "github.com/cuemby/objstore/pkg/ostore"

// rangePart is the portion of one fragment file that backs a logical
// byte range.
type rangePart struct {
	Fid          ostore.Fid
	FileOffset   uint64 // offset within the fragment file
	GlobalOffset uint64 // offset within the object
	Length       uint64
}

// splitRange walks dataMap and returns, in ascending order, the
// fragment-file-relative slices that back [offset, offset+length) of
// the object's logical byte range. Used both to read an existing
// range (CLONERANGE2's source) and to locate the WAL targets for an
// in-place overwrite that falls outside the fresh-write/append case.
func splitRange(dataMap []ostore.Fragment, offset, length uint64) []rangePart {
	end := offset + length
	var parts []rangePart
	for _, f := range dataMap {
		fEnd := f.End()
		lo := maxU64(offset, f.Offset)
		hi := minU64(end, fEnd)
		if lo < hi {
			parts = append(parts, rangePart{
				Fid:          f.Fid,
				FileOffset:   lo - f.Offset,
				GlobalOffset: lo,
				Length:       hi - lo,
			})
		}
	}
	return parts
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
