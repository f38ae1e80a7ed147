package speedwire

import "fmt"

// revisionSuffixes maps the revision byte of the firmware version block
// to its release-class suffix. The byte is the ASCII code of a decimal
// digit; anything outside '1'..'6' yields no suffix.
var revisionSuffixes = map[byte]string{
	'1': ".S",
	'2': ".A",
	'3': ".B",
	'4': ".R",
	'5': ".E",
	'6': ".N",
}

// formatVersion renders the 4-byte firmware version block as
// "major.minor.patch[.suffix]|xxxxxx", where xxxxxx is the hex form of
// the first three bytes.
func formatVersion(raw []byte) string {
	version := fmt.Sprintf("%d.%d.%d", raw[0], raw[1], raw[2])
	suffix := revisionSuffixes[raw[3]]
	return fmt.Sprintf("%s%s|%02x%02x%02x", version, suffix, raw[0], raw[1], raw[2])
}
