// Package product parses Sentinel-1, Sentinel-2 and Landsat-8 product
// identifiers into structured records.
//
// Catalog identifiers encode platform, processing level, acquisition time and
// the spatial reference (tile or path/row) as fixed positional fields. All the
// positional knowledge lives here so the selection code never slices strings.
package product

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidID is returned when an identifier does not match the expected format.
var ErrInvalidID = errors.New("invalid product id")

const (
	compactDate     = "20060102"
	compactDateTime = "20060102T150405"
)

// SafeSuffix is the extension carried by some Sentinel product names.
const SafeSuffix = ".SAFE"

// S1ID is a parsed Sentinel-1 product identifier, e.g.
// S1A_IW_GRDH_1SDV_20200601T055000_20200601T055025_032823_03CD2E_1234.
type S1ID struct {
	Raw          string
	Mission      string // S1A, S1B
	BeamMode     string // IW, EW, SM, WV
	ProductType  string // GRDH, SLC_, ...
	Level        string // 1 or 2
	Class        string // S (standard), A (annotation)
	Polarisation string // SH, SV, DH, DV
	Start        time.Time
	Stop         time.Time
	AbsOrbit     string
	DataTake     string
	UniqueID     string
}

// DateToken returns the acquisition day as YYYYMMDD.
func (id S1ID) DateToken() string {
	return id.Start.Format(compactDate)
}

// ParseS1 parses a Sentinel-1 identifier.
func ParseS1(raw string) (S1ID, error) {
	name := strings.TrimSuffix(raw, SafeSuffix)
	fields := strings.Split(name, "_")

	// SLC products carry an extra underscore in the type field ("SLC_").
	if len(fields) == 10 && fields[2] == "SLC" && fields[3] == "" {
		fields = append([]string{fields[0], fields[1], "SLC_"}, fields[4:]...)
	}
	if len(fields) != 9 {
		return S1ID{}, fmt.Errorf("%w: %q: expected 9 fields, got %d", ErrInvalidID, raw, len(fields))
	}
	if !strings.HasPrefix(fields[0], "S1") {
		return S1ID{}, fmt.Errorf("%w: %q: not a Sentinel-1 mission", ErrInvalidID, raw)
	}
	if len(fields[3]) != 4 {
		return S1ID{}, fmt.Errorf("%w: %q: malformed level/class/polarisation field %q", ErrInvalidID, raw, fields[3])
	}

	start, err := time.Parse(compactDateTime, fields[4])
	if err != nil {
		return S1ID{}, fmt.Errorf("%w: %q: start time: %v", ErrInvalidID, raw, err)
	}
	stop, err := time.Parse(compactDateTime, fields[5])
	if err != nil {
		return S1ID{}, fmt.Errorf("%w: %q: stop time: %v", ErrInvalidID, raw, err)
	}

	return S1ID{
		Raw:          raw,
		Mission:      fields[0],
		BeamMode:     fields[1],
		ProductType:  fields[2],
		Level:        fields[3][0:1],
		Class:        fields[3][1:2],
		Polarisation: fields[3][2:4],
		Start:        start,
		Stop:         stop,
		AbsOrbit:     fields[6],
		DataTake:     fields[7],
		UniqueID:     fields[8],
	}, nil
}

// S2ID is a parsed Sentinel-2 product identifier, e.g.
// S2A_MSIL2A_20200401T105031_N0214_R051_T31TCJ_20200401T113457.
type S2ID struct {
	Raw           string
	Mission       string // S2A, S2B
	Level         string // L1C, L2A
	Sensing       time.Time
	Baseline      string // N0214
	RelativeOrbit string // R051
	Tile          string // 31TCJ
	Generation    time.Time
}

// BaseID returns the identifier without the .SAFE extension.
func (id S2ID) BaseID() string {
	return strings.TrimSuffix(id.Raw, SafeSuffix)
}

// ParseS2 parses a Sentinel-2 identifier.
func ParseS2(raw string) (S2ID, error) {
	fields := strings.Split(strings.TrimSuffix(raw, SafeSuffix), "_")
	if len(fields) != 7 {
		return S2ID{}, fmt.Errorf("%w: %q: expected 7 fields, got %d", ErrInvalidID, raw, len(fields))
	}
	if !strings.HasPrefix(fields[0], "S2") {
		return S2ID{}, fmt.Errorf("%w: %q: not a Sentinel-2 mission", ErrInvalidID, raw)
	}
	if !strings.HasPrefix(fields[1], "MSI") || len(fields[1]) != 6 {
		return S2ID{}, fmt.Errorf("%w: %q: malformed product level %q", ErrInvalidID, raw, fields[1])
	}

	sensing, err := time.Parse(compactDateTime, fields[2])
	if err != nil {
		return S2ID{}, fmt.Errorf("%w: %q: sensing time: %v", ErrInvalidID, raw, err)
	}
	generation, err := time.Parse(compactDateTime, fields[6])
	if err != nil {
		return S2ID{}, fmt.Errorf("%w: %q: generation time: %v", ErrInvalidID, raw, err)
	}

	return S2ID{
		Raw:           raw,
		Mission:       fields[0],
		Level:         strings.TrimPrefix(fields[1], "MSI"),
		Sensing:       sensing,
		Baseline:      fields[3],
		RelativeOrbit: fields[4],
		Tile:          strings.TrimPrefix(fields[5], "T"),
		Generation:    generation,
	}, nil
}

// L8Prefix identifies Landsat-8 OLI/TIRS combined products.
const L8Prefix = "LC08"

// SRSuffix marks the surface reflectance variant of a Landsat product id.
const SRSuffix = "_SR"

// LandsatID is a parsed Landsat Collection 2 identifier, e.g.
// LC08_L1TP_198030_20200405_20200410_02_T1.
type LandsatID struct {
	Raw         string
	Sensor      string // LC08, LC09, LE07
	Correction  string // L1TP, L1GT, L1GS, L2SP
	Path        string // zero-padded, 3 digits
	Row         string // zero-padded, 3 digits
	Acquisition time.Time
	Processing  time.Time
	Collection  string
	Category    string // T1, T2, RT
}

// BaseID returns the identifier without the surface reflectance suffix.
func (id LandsatID) BaseID() string {
	return strings.TrimSuffix(id.Raw, SRSuffix)
}

// DateToken returns the acquisition day as YYYYMMDD.
func (id LandsatID) DateToken() string {
	return id.Acquisition.Format(compactDate)
}

// ParseLandsat parses a Landsat Collection 1 or 2 identifier.
func ParseLandsat(raw string) (LandsatID, error) {
	fields := strings.Split(strings.TrimSuffix(raw, SRSuffix), "_")
	if len(fields) != 7 {
		return LandsatID{}, fmt.Errorf("%w: %q: expected 7 fields, got %d", ErrInvalidID, raw, len(fields))
	}
	if len(fields[0]) != 4 || fields[0][0] != 'L' {
		return LandsatID{}, fmt.Errorf("%w: %q: not a Landsat sensor %q", ErrInvalidID, raw, fields[0])
	}
	if len(fields[2]) != 6 {
		return LandsatID{}, fmt.Errorf("%w: %q: malformed path/row %q", ErrInvalidID, raw, fields[2])
	}

	acquired, err := time.Parse(compactDate, fields[3])
	if err != nil {
		return LandsatID{}, fmt.Errorf("%w: %q: acquisition date: %v", ErrInvalidID, raw, err)
	}
	processed, err := time.Parse(compactDate, fields[4])
	if err != nil {
		return LandsatID{}, fmt.Errorf("%w: %q: processing date: %v", ErrInvalidID, raw, err)
	}

	return LandsatID{
		Raw:         raw,
		Sensor:      fields[0],
		Correction:  fields[1],
		Path:        fields[2][0:3],
		Row:         fields[2][3:6],
		Acquisition: acquired,
		Processing:  processed,
		Collection:  fields[5],
		Category:    fields[6],
	}, nil
}

// PadPathRow left-pads a WRS path or row to three digits.
func PadPathRow(v string) string {
	for len(v) < 3 {
		v = "0" + v
	}
	return v
}
