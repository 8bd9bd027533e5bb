package models

import "time"

// Property is the structured record extracted from one listing page.
//
// Every field is independently optional: a selector chain that matches
// nothing leaves its field null instead of failing the acquisition. The
// Images set is deduplicated and canonicalized to full-size URLs.
type Property struct {
	// URL is the normalized listing address the record was acquired from.
	URL string `json:"url"`

	Price     *string `json:"price"`
	Title     *string `json:"title"`
	Size      *string `json:"size"`
	Rooms     *string `json:"rooms"`
	Bathrooms *string `json:"bathrooms"`

	// PropertyType is matched against a fixed vocabulary across the feature
	// list, then the title.
	PropertyType *string `json:"propertyType"`

	// ConstructionYear holds the first feature fragment carrying a 4-digit
	// year, preferring ones introduced by a built/construido/año marker.
	ConstructionYear *string `json:"constructionYear"`

	Orientation       *string `json:"orientation"`
	EnergyConsumption *string `json:"energyConsumption"`
	Emissions         *string `json:"emissions"`

	Description *string  `json:"description"`
	Images      []string `json:"images"`
	Features    []string `json:"features"`

	// ScrapedAt is the acquisition timestamp (UTC).
	ScrapedAt time.Time `json:"scrapedAt"`
}
