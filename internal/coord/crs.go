package coord

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCRS resolves a CRS string to a Projection. Accepted forms are
// "EPSG:32633", "epsg:4326", a bare code "3857", and
// "urn:ogc:def:crs:EPSG::32633".
func ParseCRS(s string) (Projection, error) {
	code, err := ParseEPSG(s)
	if err != nil {
		return nil, err
	}
	p := ForEPSG(code)
	if p == nil {
		return nil, fmt.Errorf("unsupported CRS EPSG:%d", code)
	}
	return p, nil
}

// ParseEPSG extracts the numeric EPSG code from s.
func ParseEPSG(s string) (int, error) {
	t := strings.TrimSpace(s)
	if i := strings.LastIndex(t, ":"); i >= 0 {
		authority := strings.ToUpper(t[:i])
		if !strings.HasSuffix(strings.TrimRight(authority, ":"), "EPSG") {
			return 0, fmt.Errorf("unsupported CRS authority in %q", s)
		}
		t = t[i+1:]
	}
	code, err := strconv.Atoi(t)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("invalid CRS %q", s)
	}
	return code, nil
}
