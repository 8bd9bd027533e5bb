package extract

import (
	"regexp"
	"strings"

	"github.com/idealistaplus/backend/models"
)

// Selector chains per field; first non-empty match wins.
var (
	priceSelectors       = []string{".info-data-price", ".price-row"}
	titleSelectors       = []string{".main-info__title-main", ".main-info__title"}
	descriptionSelectors = []string{".comment .adCommentsBody", ".comment", ".adCommentsBody"}
)

const (
	featureSpanSelector   = ".info-features span"
	featureListSelector   = ".details-property_features li, .details-property-feature-one li"
	imageSelector         = `.detail-multimedia img, .detail-multimedia-gallery img, .carousel-img, img[src*="img3.idealista.com"], img[src*="img4.idealista.com"]`
	pictureSourceSelector = "picture source"
	energyCertSelector    = ".details-property_certified-energy li, .details-property-feature-energy li"
	consumptionBadge      = `.icon-energy-certificate-consumption, [class*="energy"][class*="consumption"]`
	emissionsBadge        = `.icon-energy-certificate-emissions, [class*="energy"][class*="emission"]`
)

// thumbnailPath matches the size segment inserted into thumbnail URLs,
// e.g. /S300x200/photo.jpg. Stripping it yields the full-size URL.
var thumbnailPath = regexp.MustCompile(`/S\d+x\d+/`)

var (
	yearWithMarker = regexp.MustCompile(`(?i)(built in|construido en|año)\s*\d{4}`)
	bareYear       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// propertyTypeVocab are the known type keywords, English and Spanish.
// Scanned in order; the first hit wins.
var propertyTypeVocab = []string{
	"flat", "apartment", "house", "detached", "semi-detached", "terraced",
	"penthouse", "studio", "duplex", "villa", "chalet", "bungalow",
	"country house",
	"piso", "casa", "adosado", "ático", "estudio", "dúplex", "finca",
}

// orientationTerms are compass keywords a bare orientation feature can be,
// matched by exact equality against the lowercased feature text.
var orientationTerms = []string{
	"southeast", "southwest", "northeast", "northwest",
	"sureste", "suroeste", "noreste", "noroeste",
	"north", "south", "east", "west",
	"norte", "sur", "este", "oeste",
}

// Property runs the full rule table against doc and returns the extracted
// fields. It never fails: unmatched fields stay nil. Deterministic: the same
// document always yields the same record. URL and ScrapedAt are the caller's
// responsibility.
func Property(doc Document) *models.Property {
	p := &models.Property{}

	p.Price = firstText(doc, priceSelectors)
	p.Title = firstText(doc, titleSelectors)
	p.Description = firstText(doc, descriptionSelectors)

	classifyFeatureSpans(doc.Texts(featureSpanSelector), p)

	p.Features = doc.Texts(featureListSelector)
	if p.Rooms == nil || p.Bathrooms == nil {
		roomsFromFeatures(p.Features, p)
	}

	p.Images = collectImages(doc)

	p.PropertyType = propertyType(p.Features, p.Title)
	p.ConstructionYear = constructionYear(p.Features)
	p.Orientation = orientation(p.Features)
	p.EnergyConsumption, p.Emissions = energyRatings(doc, p.Features)

	return p
}

// firstText applies a selector chain, short-circuiting on the first selector
// that yields non-empty text.
func firstText(doc Document, selectors []string) *string {
	for _, sel := range selectors {
		if text := doc.Text(sel); text != "" {
			return &text
		}
	}
	return nil
}

// classifyFeatureSpans buckets the detail spans into size/rooms/bathrooms by
// substring, case-insensitive and tolerant of both Spanish and English
// tokens. At most one value per slot; the first match wins, scan order
// preserved.
func classifyFeatureSpans(spans []string, p *models.Property) {
	for _, span := range spans {
		span := span
		lower := strings.ToLower(span)
		switch {
		case p.Size == nil && strings.Contains(lower, "m²"):
			p.Size = &span
		case p.Rooms == nil && containsAny(lower, "hab", "bedroom", "bed."):
			p.Rooms = &span
		case p.Bathrooms == nil && containsAny(lower, "baño", "bathroom", "bath."):
			p.Bathrooms = &span
		}
	}
}

// roomsFromFeatures backfills rooms/bathrooms from the feature list when the
// detail spans missed them (some layouts only list them there).
func roomsFromFeatures(features []string, p *models.Property) {
	for _, f := range features {
		f := f
		lower := strings.ToLower(f)
		if p.Rooms == nil && containsAny(lower, "bedroom", "hab") {
			p.Rooms = &f
		}
		if p.Bathrooms == nil && containsAny(lower, "bathroom", "baño") {
			p.Bathrooms = &f
		}
	}
}

// collectImages gathers gallery image URLs: src (or lazy data-src/data-lazy)
// across the image selector groups, plus the first entry of picture-source
// srcset lists. Only absolute URLs are kept; thumbnail size segments are
// stripped so variants of the same photo collapse to one canonical URL.
// Insertion order is preserved.
func collectImages(doc Document) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	doc.Each(imageSelector, func(el Element) {
		src, _ := el.Attr("src")
		if src == "" {
			src, _ = el.Attr("data-src")
		}
		if src == "" {
			src, _ = el.Attr("data-lazy")
		}
		if strings.HasPrefix(src, "http") {
			add(thumbnailPath.ReplaceAllString(src, "/"))
		}
	})

	doc.Each(pictureSourceSelector, func(el Element) {
		srcset, _ := el.Attr("srcset")
		if srcset == "" || !strings.Contains(srcset, "idealista.com") {
			return
		}
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			add(fields[0])
		}
	})

	return out
}

// propertyType matches the type vocabulary against the feature list first
// (returning the full feature text), then the title (returning the
// capitalized keyword).
func propertyType(features []string, title *string) *string {
	for _, f := range features {
		f := f
		lower := strings.ToLower(f)
		for _, kw := range propertyTypeVocab {
			if strings.Contains(lower, kw) {
				return &f
			}
		}
	}

	if title != nil {
		lower := strings.ToLower(*title)
		for _, kw := range propertyTypeVocab {
			if strings.Contains(lower, kw) {
				capitalized := strings.ToUpper(kw[:1]) + kw[1:]
				return &capitalized
			}
		}
	}
	return nil
}

// constructionYear finds the first feature carrying a 4-digit year,
// preferring fragments introduced by a built/construido/año marker.
func constructionYear(features []string) *string {
	for _, f := range features {
		if m := yearWithMarker.FindString(f); m != "" {
			return &m
		}
		if m := bareYear.FindString(f); m != "" {
			return &m
		}
	}
	return nil
}

// orientation returns the first feature mentioning orientation, or one that
// is exactly a compass term.
func orientation(features []string) *string {
	for _, f := range features {
		f := f
		lower := strings.ToLower(f)
		if containsAny(lower, "orient", "facing") {
			return &f
		}
		for _, term := range orientationTerms {
			if lower == term {
				return &f
			}
		}
	}
	return nil
}

// energyRatings pulls the consumption and emissions ratings from the energy
// certificate list, falling back to a keyword scan of the feature list, then
// to the certificate badge elements.
func energyRatings(doc Document, features []string) (consumption, emissions *string) {
	scan := func(items []string) {
		for _, item := range items {
			item := item
			lower := strings.ToLower(item)
			if consumption == nil && containsAny(lower, "consum", "kwh") {
				consumption = &item
			}
			if emissions == nil && containsAny(lower, "emisi", "emission", "co2", "co₂") {
				emissions = &item
			}
		}
	}

	scan(doc.Texts(energyCertSelector))
	if consumption == nil || emissions == nil {
		scan(features)
	}

	if consumption == nil {
		if text := doc.Text(consumptionBadge); text != "" {
			consumption = &text
		}
	}
	if emissions == nil {
		if text := doc.Text(emissionsBadge); text != "" {
			emissions = &text
		}
	}
	return consumption, emissions
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
