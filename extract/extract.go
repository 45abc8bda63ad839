// Package extract reads single fields out of Cloudflare API response
// bodies. It is deliberately narrow: the three operations here cover
// exactly the shapes the API guarantees (string fields, a boolean
// success flag, flat arrays of objects) and nothing else. Callers must
// not point it at arbitrary JSON.
package extract

import (
	"bytes"
	"encoding/json"
)

// StringField returns the first string value for key in document order,
// at any nesting depth. Non-string values for key are skipped. Returns
// false on malformed input or when the key never maps to a string.
func StringField(body []byte, key string) (string, bool) {
	var out string
	found := false
	walk(body, func(k string, v json.Token) bool {
		s, ok := v.(string)
		if k == key && ok {
			out = s
			found = true
			return true
		}
		return false
	}, nil)
	return out, found
}

// FlagTrue reports whether key maps to the literal true anywhere in the
// body. Malformed input reads as false.
func FlagTrue(body []byte, key string) bool {
	found := false
	walk(body, func(k string, v json.Token) bool {
		b, ok := v.(bool)
		if k == key && ok && b {
			found = true
			return true
		}
		return false
	}, nil)
	return found
}

// Pairs collects (key1, key2) string values from every object that
// carries both, in document order. Built for responses shaped like
// {"result": [{"id": ..., "name": ...}, ...]}; objects missing either
// key contribute nothing.
func Pairs(body []byte, key1, key2 string) [][2]string {
	var out [][2]string
	walk(body, nil, func(fields map[string]string) bool {
		v1, ok1 := fields[key1]
		v2, ok2 := fields[key2]
		if ok1 && ok2 {
			out = append(out, [2]string{v1, v2})
		}
		return false
	})
	return out
}

// walk streams body as JSON tokens. field is called for every
// key/scalar-value pair inside an object; object is called with the
// string-valued fields of each object as it closes. Either callback may
// return true to stop. Errors end the walk silently: the contract for
// malformed input is "absent", not failure.
func walk(body []byte, field func(key string, value json.Token) bool, object func(fields map[string]string) bool) {
	type frame struct {
		object  bool
		keyNext bool
		key     string
		haveKey bool
		fields  map[string]string
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var stack []*frame
	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}

		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{':
				if p := top(); p != nil && p.object {
					p.haveKey = false
				}
				stack = append(stack, &frame{object: true, keyNext: true, fields: map[string]string{}})
			case '[':
				if p := top(); p != nil && p.object {
					p.haveKey = false
				}
				stack = append(stack, &frame{})
			case '}':
				f := top()
				stack = stack[:len(stack)-1]
				if object != nil && f != nil && object(f.fields) {
					return
				}
				if p := top(); p != nil && p.object {
					p.keyNext = true
				}
			case ']':
				if len(stack) == 0 {
					return
				}
				stack = stack[:len(stack)-1]
				if p := top(); p != nil && p.object {
					p.keyNext = true
				}
			}
			continue
		}

		f := top()
		if f == nil || !f.object {
			continue
		}
		if s, ok := tok.(string); ok && f.keyNext {
			f.key = s
			f.haveKey = true
			f.keyNext = false
			continue
		}
		if f.haveKey {
			if s, ok := tok.(string); ok {
				f.fields[f.key] = s
			}
			if field != nil && field(f.key, tok) {
				return
			}
		}
		f.haveKey = false
		f.keyNext = true
	}
}
