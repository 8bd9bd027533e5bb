package models

// PropertyRequest is the payload for POST /api/property.
type PropertyRequest struct {
	// URL is the listing page to acquire. Required. The handler performs the
	// site-specific pattern validation and normalization; gin only guards
	// presence here.
	URL string `json:"url" binding:"required"`
}
