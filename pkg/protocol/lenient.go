package protocol

import (
	"math"
	"strconv"
)

// Number is a float64 that tolerates malformed JSON values. A JSON number
// decodes normally; a numeric string is parsed; a boolean becomes 0 or 1;
// anything else (null, objects, garbage strings) decodes to NaN so the
// sanitizer can substitute the documented default. Decoding never fails.
type Number float64

// UnmarshalJSON implements lenient decoding as described on [Number].
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "true":
		*n = 1
		return nil
	case "false", "null":
		*n = Number(math.NaN())
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = Number(math.NaN())
		return nil
	}
	*n = Number(v)
	return nil
}

// Float returns the underlying float64.
func (n Number) Float() float64 { return float64(n) }

// Flag is a boolean that tolerates malformed JSON values, following
// truthiness semantics: false, 0, "", null and garbage are false;
// true, non-zero numbers, and non-empty strings are true.
type Flag bool

// UnmarshalJSON implements lenient decoding as described on [Flag].
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "true":
		*f = true
		return nil
	case "false", "null", `""`, "0":
		*f = false
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		*f = len(s) > 2
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = v != 0
		return nil
	}
	// Objects and arrays are non-empty values.
	*f = true
	return nil
}

// Bool returns the underlying bool.
func (f Flag) Bool() bool { return bool(f) }
