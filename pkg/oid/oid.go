package oid

import (
	"fmt"
	"strconv"

	"github.com/cuemby/objstore/pkg/ostore"
)

const (
	sep byte = 0x21 // '!'
	end byte = 0xff

	snapHeadToken    = "head"
	snapSnapdirToken = "snapdir"
)

// Encode produces the canonical kv-key encoding of o, terminated by the
// 0xff end byte.
func Encode(o ostore.Oid) []byte {
	out := make([]byte, 0, 64)
	out = append(out, []byte(fmt.Sprintf("%02X", uint8(o.Shard)))...)
	out = append(out, sep)
	out = append(out, []byte(fmt.Sprintf("%08X", o.Hash))...)
	out = append(out, sep)
	out = append(out, escape(o.Namespace)...)
	out = append(out, sep)
	out = append(out, []byte(strconv.FormatInt(o.Pool, 10))...)
	out = append(out, sep)
	out = append(out, escape(o.Key)...)
	out = append(out, sep)
	out = append(out, escape(o.Name)...)
	out = append(out, sep)
	out = append(out, []byte(snapToken(o.Snap))...)

	if o.HasGeneration() {
		out = append(out, sep)
		out = append(out, []byte(fmt.Sprintf("%016x", o.Generation))...)
		out = append(out, sep)
		out = append(out, []byte(fmt.Sprintf("%x", uint8(o.Shard)))...)
	}

	out = append(out, end)
	return out
}

// Decode parses a canonical kv-key encoding back into an Oid. It is the
// inverse of Encode for every o whose Shard fits in an int8:
// Decode(Encode(o)) == o. Encode keeps only the low 8 bits of Shard.
func Decode(data []byte) (ostore.Oid, error) {
	var o ostore.Oid

	if len(data) == 0 || data[len(data)-1] != end {
		return o, ostore.New(ostore.CodeCorrupt, "oid.Decode", "missing end byte")
	}
	fields, err := splitFields(data[:len(data)-1])
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "split fields", err)
	}

	var hasGen bool
	switch len(fields) {
	case 7:
		hasGen = false
	case 9:
		hasGen = true
	default:
		return o, ostore.New(ostore.CodeCorrupt, "oid.Decode",
			fmt.Sprintf("unexpected field count %d", len(fields)))
	}

	shard, err := strconv.ParseUint(string(fields[0]), 16, 8)
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "shard", err)
	}
	o.Shard = int32(int8(shard))

	hash, err := strconv.ParseUint(string(fields[1]), 16, 32)
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "hash", err)
	}
	o.Hash = uint32(hash)

	if o.Namespace, err = unescape(fields[2]); err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "namespace", err)
	}

	pool, err := strconv.ParseInt(string(fields[3]), 10, 64)
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "pool", err)
	}
	o.Pool = pool

	if o.Key, err = unescape(fields[4]); err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "key", err)
	}
	if o.Name, err = unescape(fields[5]); err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "name", err)
	}

	snap, err := parseSnap(string(fields[6]))
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "snap", err)
	}
	o.Snap = snap

	if !hasGen {
		o.Generation = ostore.NoGeneration
		return o, nil
	}

	gen, err := strconv.ParseUint(string(fields[7]), 16, 64)
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "generation", err)
	}
	o.Generation = gen

	dupShard, err := strconv.ParseUint(string(fields[8]), 16, 8)
	if err != nil {
		return o, ostore.Wrap(ostore.CodeCorrupt, "oid.Decode", "trailing shard", err)
	}
	if uint8(dupShard) != uint8(shard) {
		return o, ostore.New(ostore.CodeCorrupt, "oid.Decode", "trailing shard mismatch")
	}

	return o, nil
}

func snapToken(s ostore.SnapID) string {
	switch s {
	case ostore.SnapHead:
		return snapHeadToken
	case ostore.SnapDir:
		return snapSnapdirToken
	default:
		return fmt.Sprintf("%016x", uint64(s))
	}
}

func parseSnap(tok string) (ostore.SnapID, error) {
	switch tok {
	case snapHeadToken:
		return ostore.SnapHead, nil
	case snapSnapdirToken:
		return ostore.SnapDir, nil
	default:
		v, err := strconv.ParseUint(tok, 16, 64)
		if err != nil {
			return 0, err
		}
		return ostore.SnapID(v), nil
	}
}

// escape applies the field-escaping rule to a variable-length field:
// '%' -> "%p", '.' -> "%e", the separator byte -> "%u". The separator
// byte and
// '!' are the same byte (0x21), so there is no distinct "!ed" case to
// apply: every literal '!' is already caught by the separator rule.
func escape(in string) []byte {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		switch in[i] {
		case '%':
			out = append(out, '%', 'p')
		case '.':
			out = append(out, '%', 'e')
		case sep:
			out = append(out, '%', 'u')
		default:
			out = append(out, in[i])
		}
	}
	return out
}

func unescape(in []byte) (string, error) {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c != '%' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(in) {
			return "", fmt.Errorf("dangling escape at end of field")
		}
		switch in[i] {
		case 'p':
			out = append(out, '%')
		case 'e':
			out = append(out, '.')
		case 'u', 's':
			out = append(out, sep)
		default:
			return "", fmt.Errorf("invalid escape code %%%c", in[i])
		}
	}
	return string(out), nil
}

// splitFields splits data on unescaped separator bytes, treating any
// byte following an unconsumed '%' as part of an escape sequence rather
// than a candidate separator.
func splitFields(data []byte) ([][]byte, error) {
	var fields [][]byte
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '%' {
			if i+1 >= len(data) {
				return nil, fmt.Errorf("dangling escape in key")
			}
			i++
			continue
		}
		if data[i] == sep {
			fields = append(fields, data[start:i])
			start = i + 1
		}
	}
	fields = append(fields, data[start:])
	return fields, nil
}
