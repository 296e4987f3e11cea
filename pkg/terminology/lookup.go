package terminology

import (
	"math"
	"strconv"
	"strings"
)

// DischargeDisposition groups a discharge_disposition_id.
func (c Catalog) DischargeDisposition(id string, present bool) string {
	return lookupID(c.DischargeMap, c.DischargeFallback, id, present)
}

// AdmissionSource groups an admission_source_id.
func (c Catalog) AdmissionSource(id string, present bool) string {
	return lookupID(c.AdmissionMap, c.AdmissionFallback, id, present)
}

// AgeMidpoint returns the numeric midpoint of an age bucket such as "[70-80)".
func (c Catalog) AgeMidpoint(bucket string, present bool) (float64, bool) {
	if !present {
		return math.NaN(), false
	}
	v, ok := c.AgeMidpoints[strings.TrimSpace(bucket)]
	if !ok {
		return math.NaN(), false
	}
	return v, true
}

func lookupID(table map[int]string, fallback, raw string, present bool) string {
	if !present {
		return fallback
	}
	id, ok := parseID(raw)
	if !ok {
		return fallback
	}
	if category, ok := table[id]; ok {
		return category
	}
	return fallback
}

// parseID accepts "7" as well as integral floats such as "7.0".
func parseID(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.Atoi(raw); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
