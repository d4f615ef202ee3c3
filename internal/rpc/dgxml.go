package rpc

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// floatList decodes an XML element holding whitespace-separated floats.
type floatList []float64

func (f *floatList) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	for _, val := range strings.Fields(s) {
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return malformed("invalid coefficient for %s: %q", start.Name.Local, val)
		}
		*f = append(*f, v)
	}
	return nil
}

// dgImage is the <RPB><IMAGE> block of a DigitalGlobe metadata file.
type dgImage struct {
	ErrBias      string `xml:"ERRBIAS"`
	ErrRand      string `xml:"ERRRAND"`
	LineOffset   string `xml:"LINEOFFSET"`
	SampOffset   string `xml:"SAMPOFFSET"`
	LatOffset    string `xml:"LATOFFSET"`
	LonOffset    string `xml:"LONGOFFSET"`
	HeightOffset string `xml:"HEIGHTOFFSET"`
	LineScale    string `xml:"LINESCALE"`
	SampScale    string `xml:"SAMPSCALE"`
	LatScale     string `xml:"LATSCALE"`
	LonScale     string `xml:"LONGSCALE"`
	HeightScale  string `xml:"HEIGHTSCALE"`

	LineNum floatList `xml:"LINENUMCOEFList>LINENUMCOEF"`
	LineDen floatList `xml:"LINEDENCOEFList>LINEDENCOEF"`
	SampNum floatList `xml:"SAMPNUMCOEFList>SAMPNUMCOEF"`
	SampDen floatList `xml:"SAMPDENCOEFList>SAMPDENCOEF"`
}

// ErrNotDGXML is returned for well-formed XML that carries no DigitalGlobe
// <isd><RPB><IMAGE> block.
var ErrNotDGXML = errors.New("not a DigitalGlobe RPC file")

// ParseDGXML reads the RPC block of a DigitalGlobe .XML metadata file
// (<isd><RPB><IMAGE>) into Metadata using the same canonical keys as
// ParseRPB.
func ParseDGXML(r io.Reader) (*Metadata, error) {
	d := struct {
		XMLName xml.Name
		RPB     *struct {
			IMAGE *dgImage
		}
	}{}
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		var mErr *MalformedModelError
		if errors.As(err, &mErr) {
			return nil, mErr
		}
		return nil, errors.Wrap(err, "failed parsing RPCs")
	}
	if d.XMLName.Local != "isd" {
		return nil, errors.Wrapf(ErrNotDGXML, "root element <%s>", d.XMLName.Local)
	}
	if d.RPB == nil || d.RPB.IMAGE == nil {
		return nil, errors.Wrap(ErrNotDGXML, "no <RPB><IMAGE> block")
	}

	img := d.RPB.IMAGE
	md := NewMetadata()
	for key, raw := range map[string]string{
		KeyErrBias:      img.ErrBias,
		KeyErrRand:      img.ErrRand,
		KeyLineOffset:   img.LineOffset,
		KeySampOffset:   img.SampOffset,
		KeyLatOffset:    img.LatOffset,
		KeyLonOffset:    img.LonOffset,
		KeyHeightOffset: img.HeightOffset,
		KeyLineScale:    img.LineScale,
		KeySampScale:    img.SampScale,
		KeyLatScale:     img.LatScale,
		KeyLonScale:     img.LonScale,
		KeyHeightScale:  img.HeightScale,
	} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			md.SetScalar(key, v)
		} else {
			md.SetText(key, raw)
		}
	}
	for key, list := range map[string]floatList{
		KeyLineNum: img.LineNum,
		KeyLineDen: img.LineDen,
		KeySampNum: img.SampNum,
		KeySampDen: img.SampDen,
	} {
		if len(list) > 0 {
			md.SetVector(key, list)
		}
	}
	return md, nil
}

// ReadDGXMLFile parses a DigitalGlobe metadata XML file and builds a Model.
func ReadDGXMLFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening DG XML")
	}
	defer f.Close()

	md, err := ParseDGXML(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	m, err := NewModel(md)
	if err != nil {
		return nil, errors.Wrapf(err, "building model from %s", path)
	}
	return m, nil
}
