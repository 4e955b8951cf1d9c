package record

import (
	"fmt"
	"strings"
)

// ValidateKeyPath checks that path is a dotted sequence of non-empty field
// names. The empty path is valid and denotes the value itself.
func ValidateKeyPath(path string) error {
	if path == "" {
		return nil
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("invalid key path %q: empty segment", path)
		}
	}
	return nil
}

// Extract evaluates a key path against v. It reports false when a segment is
// missing or traverses a non-object.
func Extract(v Value, path string) (Value, bool) {
	if path == "" {
		return v, v != nil
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ExtractKey evaluates a key path and requires the result to be a valid key.
func ExtractKey(v Value, path string) (Key, error) {
	k, ok := Extract(v, path)
	if !ok {
		return nil, fmt.Errorf("key path %q not present", path)
	}
	if err := ValidateKey(k); err != nil {
		return nil, fmt.Errorf("key path %q: %w", path, err)
	}
	return k, nil
}

// Inject stores key at path inside obj, creating intermediate objects. It
// fails when an intermediate segment holds a non-object value.
func Inject(obj Object, path string, key Key) error {
	if path == "" {
		return fmt.Errorf("cannot inject key at empty key path")
	}
	segs := strings.Split(path, ".")
	cur := obj
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			child := Object{}
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(Object)
		if !ok {
			return fmt.Errorf("cannot inject key at %q: %q is %s", path, seg, TypeName(next))
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = key
	return nil
}
