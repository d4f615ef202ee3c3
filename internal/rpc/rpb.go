package rpc

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var rpbPunctuation = strings.NewReplacer(");", "", ")", "", ";", "")

// ParseRPB reads RPB-style key/value text.
//
// The format is loosely structured: `key = value;` scalars, quoted strings,
// and parenthesised coefficient lists that may continue over several lines
// until the next key. Keys are folded with NormalizeKey. Scalars that do not
// parse as numbers are kept verbatim in Metadata.Text.
func ParseRPB(r io.Reader) (*Metadata, error) {
	md := NewMetadata()

	var (
		current string
		values  []float64
		lineNo  int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lineNo++
		line := rpbPunctuation.Replace(strings.TrimSpace(sc.Text()))
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "satId") || strings.HasPrefix(line, "bandId") {
			continue
		}

		key, value, hasKey := strings.Cut(line, "=")
		if !hasKey {
			if current == "" {
				continue
			}
			vals, err := parseFloatList(line)
			if err != nil {
				return nil, malformed("invalid coefficient for %s on line %d: %v", current, lineNo, err)
			}
			values = append(values, vals...)
			md.SetVector(current, values)
			continue
		}

		if current != "" && len(values) > 0 {
			md.SetVector(current, values)
		}
		current, values = "", nil

		key = NormalizeKey(key)
		value = strings.TrimSpace(value)

		if strings.HasPrefix(value, "(") {
			vals, err := parseFloatList(value[1:])
			if err != nil {
				return nil, malformed("invalid coefficient for %s on line %d: %v", key, lineNo, err)
			}
			current, values = key, vals
			continue
		}

		if f, err := strconv.ParseFloat(value, 64); err == nil {
			md.SetScalar(key, f)
		} else {
			md.SetText(key, strings.Trim(value, `"`))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading RPB")
	}

	// A list that closes on the last line has no following key to flush it.
	if current != "" && len(values) > 0 {
		md.SetVector(current, values)
	}

	return md, nil
}

// parseFloatList parses comma-separated floats, skipping empty fields.
func parseFloatList(s string) ([]float64, error) {
	s = strings.ReplaceAll(s, ")", "")
	var out []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadRPBFile parses the RPB file at path and builds a Model from it.
func ReadRPBFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening RPB")
	}
	defer f.Close()

	md, err := ParseRPB(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	m, err := NewModel(md)
	if err != nil {
		return nil, errors.Wrapf(err, "building model from %s", path)
	}
	return m, nil
}

// ReadModelFile loads a model from an RPB or DigitalGlobe XML sidecar,
// chosen by file extension.
func ReadModelFile(path string) (*Model, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return ReadDGXMLFile(path)
	}
	return ReadRPBFile(path)
}

// FindSidecar looks for an RPC sidecar next to an image file.
// Checks extensions: .RPB, .rpb, .XML, .xml. Returns "" when none exists.
func FindSidecar(imagePath string) string {
	ext := filepath.Ext(imagePath)
	base := imagePath[:len(imagePath)-len(ext)]

	for _, c := range []string{".RPB", ".rpb", ".XML", ".xml"} {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
