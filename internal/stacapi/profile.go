package stacapi

import (
	"path"
	"strings"

	gostac "github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/objstore"
	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// Profile describes how one STAC API exposes the product families.
type Profile struct {
	Name           string
	DefaultBaseURL string
	Collections    map[catalog.Family]string
	// CloudProperty is the queryable used for the cloud cover filter.
	CloudProperty string
	// ProductID derives the product identifier from an item.
	ProductID func(item *gostac.Item) string
}

// Known STAC API profiles.
var (
	// EarthSearchCOG serves Sentinel-2 COGs on AWS.
	EarthSearchCOG = Profile{
		Name:           "aws_cog",
		DefaultBaseURL: "https://earth-search.aws.element84.com/v1",
		Collections: map[catalog.Family]string{
			catalog.FamilyS2L1C: "sentinel-2-l1c",
			catalog.FamilyS2L2A: "sentinel-2-l2a",
		},
		CloudProperty: "eo:cloud_cover",
		ProductID:     s2ProductURI,
	}

	// EarthSearchS1 serves Sentinel-1 GRD from the requester-pays
	// sentinel-s1-l1c bucket.
	EarthSearchS1 = Profile{
		Name:           "aws",
		DefaultBaseURL: "https://earth-search.aws.element84.com/v1",
		Collections: map[catalog.Family]string{
			catalog.FamilyS1GRD: "sentinel-1-grd",
		},
		ProductID: s1ProductDir,
	}

	// USGSLandsat serves Landsat collection 2 level 1 scenes.
	USGSLandsat = Profile{
		Name:           "usgs_satapi_aws",
		DefaultBaseURL: "https://landsatlook.usgs.gov/stac-server",
		Collections: map[catalog.Family]string{
			catalog.FamilyLandsat: "landsat-c2l1",
		},
		CloudProperty: "eo:cloud_cover",
		ProductID:     itemID,
	}

	// AstraeaLandsat serves Landsat collection 2 tier 1 scenes.
	AstraeaLandsat = Profile{
		Name:           "astraea_eod",
		DefaultBaseURL: "https://eod-catalog-svc-prod.astraea.earth",
		Collections: map[catalog.Family]string{
			catalog.FamilyLandsat: "landsat8_c2l1t1",
		},
		CloudProperty: "eo:cloud_cover",
		ProductID:     itemID,
	}
)

// Profiles indexes the known profiles by provider name.
var Profiles = map[string]Profile{
	EarthSearchCOG.Name: EarthSearchCOG,
	EarthSearchS1.Name:  EarthSearchS1,
	USGSLandsat.Name:    USGSLandsat,
	AstraeaLandsat.Name: AstraeaLandsat,
}

func itemID(item *gostac.Item) string {
	return item.Id
}

// s2ProductURI returns the SAFE product name, which Earth Search keeps in
// s2:product_uri while item ids use a short form.
func s2ProductURI(item *gostac.Item) string {
	if uri, ok := item.Properties["s2:product_uri"].(string); ok && uri != "" {
		return strings.TrimSuffix(uri, product.SafeSuffix)
	}
	return item.Id
}

// s1ProductDir returns the product directory name of the vv measurement,
// which is the full Sentinel-1 product name.
func s1ProductDir(item *gostac.Item) string {
	if ref := objstore.ManifestRef(assetHref(item, "vv")); ref != "" {
		return strings.TrimSuffix(path.Base(path.Dir(ref)), product.SafeSuffix)
	}
	return item.Id
}

func assetHref(item *gostac.Item, key string) string {
	if a, ok := item.Assets[key]; ok && a != nil {
		return a.Href
	}
	return ""
}
