package youtube

import (
	"regexp"
	"strconv"
	"strings"
)

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:[.,]\d+)?)S)?)?$`)

var comma = strings.NewReplacer(",", ".")

// seconds per capture group of isoDurationRe.
var durationUnits = []float64{7 * 86400, 86400, 3600, 60, 1}

// parseDuration converts an ISO 8601 duration ("PT1H2M3S", "P1W",
// "PT1.5S") to whole seconds, dropping any fraction. Unparseable or live
// ("P0D") values return 0.
func parseDuration(s string) int {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var total float64
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, err := strconv.ParseFloat(comma.Replace(part), 64)
		if err != nil {
			return 0
		}
		total += n * durationUnits[i]
	}
	return int(total)
}
