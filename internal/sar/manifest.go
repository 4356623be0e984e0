package sar

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// safeNamespace is the namespace of the Sentinel-1 specific SAFE elements.
const safeNamespace = "http://www.esa.int/safe/sentinel-1.0/sentinel-1"

// ErrNoPassElement is returned when a manifest carries no orbit pass.
var ErrNoPassElement = errors.New("manifest has no pass element")

// ParseManifestPass returns the text of the first s1:pass element of a
// manifest.safe document ("ASCENDING" or "DESCENDING").
func ParseManifestPass(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", ErrNoPassElement
		}
		if err != nil {
			return "", fmt.Errorf("parse manifest: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != safeNamespace || start.Name.Local != "pass" {
			continue
		}

		var pass string
		if err := dec.DecodeElement(&pass, &start); err != nil {
			return "", fmt.Errorf("parse manifest pass: %w", err)
		}
		return strings.TrimSpace(pass), nil
	}
}
