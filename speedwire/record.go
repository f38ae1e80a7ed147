package speedwire

import "strconv"

// SerialString returns the device serial as a string suitable for a
// topic segment. Freshly decoded records carry a uint32; records loaded
// back from a JSON sample file carry a float64.
func (r Record) SerialString() (string, bool) {
	switch v := r["serial"].(type) {
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case string:
		return v, v != ""
	default:
		return "", false
	}
}
