package rpc

import (
	"sort"
	"strings"
)

// Canonical metadata keys.
const (
	KeyLineOffset   = "LINE_OFFSET"
	KeySampOffset   = "SAMP_OFFSET"
	KeyLatOffset    = "LAT_OFFSET"
	KeyLonOffset    = "LONG_OFFSET"
	KeyHeightOffset = "HEIGHT_OFFSET"
	KeyLineScale    = "LINE_SCALE"
	KeySampScale    = "SAMP_SCALE"
	KeyLatScale     = "LAT_SCALE"
	KeyLonScale     = "LONG_SCALE"
	KeyHeightScale  = "HEIGHT_SCALE"
	KeyLineNum      = "LINE_NUM_COEFF"
	KeyLineDen      = "LINE_DEN_COEFF"
	KeySampNum      = "SAMP_NUM_COEFF"
	KeySampDen      = "SAMP_DEN_COEFF"
	KeyErrBias      = "ERR_BIAS"
	KeyErrRand      = "ERR_RAND"
)

// keyAliases maps normalized keys (upper-case, no spaces or underscores) to
// canonical keys. The first block is the RPB camel-case vocabulary; the
// second covers GDAL RPC metadata spellings.
var keyAliases = map[string]string{
	"LINENUMCOEF":  KeyLineNum,
	"LINEDENCOEF":  KeyLineDen,
	"SAMPNUMCOEF":  KeySampNum,
	"SAMPDENCOEF":  KeySampDen,
	"LATOFFSET":    KeyLatOffset,
	"LONGOFFSET":   KeyLonOffset,
	"HEIGHTOFFSET": KeyHeightOffset,
	"LINEOFFSET":   KeyLineOffset,
	"SAMPOFFSET":   KeySampOffset,
	"LATSCALE":     KeyLatScale,
	"LONGSCALE":    KeyLonScale,
	"HEIGHTSCALE":  KeyHeightScale,
	"LINESCALE":    KeyLineScale,
	"SAMPSCALE":    KeySampScale,

	"LINENUMCOEFF": KeyLineNum,
	"LINEDENCOEFF": KeyLineDen,
	"SAMPNUMCOEFF": KeySampNum,
	"SAMPDENCOEFF": KeySampDen,
	"LINEOFF":      KeyLineOffset,
	"SAMPOFF":      KeySampOffset,
	"LATOFF":       KeyLatOffset,
	"LONGOFF":      KeyLonOffset,
	"LONOFF":       KeyLonOffset,
	"LONOFFSET":    KeyLonOffset,
	"HEIGHTOFF":    KeyHeightOffset,
	"LONSCALE":     KeyLonScale,
	"ERRBIAS":      KeyErrBias,
	"ERRRAND":      KeyErrRand,
}

var keyStripper = strings.NewReplacer(" ", "", "_", "", "\t", "")

// NormalizeKey folds a metadata key to its canonical form: whitespace and
// underscores are dropped, the result is upper-cased and resolved through
// the alias table. Unknown keys keep the folded spelling.
func NormalizeKey(key string) string {
	k := strings.ToUpper(keyStripper.Replace(strings.TrimSpace(key)))
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// Metadata is the parsed key/value content of an RPC sidecar. Each key lives
// in exactly one of the three maps; setting a key removes it from the others.
type Metadata struct {
	Scalars map[string]float64
	Vectors map[string][]float64
	Text    map[string]string
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{
		Scalars: make(map[string]float64),
		Vectors: make(map[string][]float64),
		Text:    make(map[string]string),
	}
}

// SetScalar stores a numeric value under the normalized key.
func (m *Metadata) SetScalar(key string, v float64) {
	key = NormalizeKey(key)
	delete(m.Vectors, key)
	delete(m.Text, key)
	m.Scalars[key] = v
}

// SetVector stores a coefficient list under the normalized key.
func (m *Metadata) SetVector(key string, v []float64) {
	key = NormalizeKey(key)
	delete(m.Scalars, key)
	delete(m.Text, key)
	m.Vectors[key] = v
}

// SetText stores a non-numeric value under the normalized key.
func (m *Metadata) SetText(key, v string) {
	key = NormalizeKey(key)
	delete(m.Scalars, key)
	delete(m.Vectors, key)
	m.Text[key] = v
}

// Keys returns every stored key in sorted order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.Scalars)+len(m.Vectors)+len(m.Text))
	for k := range m.Scalars {
		keys = append(keys, k)
	}
	for k := range m.Vectors {
		keys = append(keys, k)
	}
	for k := range m.Text {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
