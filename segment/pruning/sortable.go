/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package pruning

import (
	"fmt"
	"strconv"
)

// sortableIntDigits and sortableFracDigits size the fixed-width decimal
// form SortableValue encodes a number into: wide enough for a uint64's
// twenty digits plus a handful of fractional digits for F64 fields.
const (
	sortableIntDigits  = 20
	sortableFracDigits = 6
)

// SortableValue rewrites raw into a form whose byte-lexicographic order
// matches its numeric order, the way flush.fieldValue already
// zero-pads timestamp and event_id to twenty digits. Gt/Gte/Lt/Lte
// compare plain strings, so an unpadded "2" sorts after "10"; every
// numeric value, not just the two fixed columns, needs the same
// fixed-width treatment before it reaches a RangeIndex entry or a
// predicate comparison. Values that are not numbers (strings, dates
// kept as ISO text, context ids) are returned unchanged, since they are
// already byte-comparable as written.
func SortableValue(raw string) string {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	neg := f < 0
	mag := f
	if neg {
		mag = -mag
	}
	width := sortableIntDigits + 1 + sortableFracDigits
	digits := fmt.Sprintf("%0*.*f", width, sortableFracDigits, mag)
	if neg {
		return "0" + complementDigits(digits)
	}
	return "1" + digits
}

// complementDigits replaces every decimal digit d with (9-d), leaving
// the decimal point untouched, so that larger magnitudes encode to
// lexicographically smaller strings. Applied to a negative number's
// magnitude this reverses the order back to the correct ascending
// sign, e.g. -20 encodes smaller than -10.
func complementDigits(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= '0' && c <= '9' {
			b[i] = '0' + ('9' - c)
		}
	}
	return string(b)
}
