package domain

// Listing is a published classified ad in its flat, caller-facing shape.
// The repository translates it to and from the JSON-column document layout
// used by the listings table.
type Listing struct {
	ID              string   `json:"id,omitempty"`
	UserID          string   `json:"userId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Slug            string   `json:"slug,omitempty"`
	ListingType     string   `json:"listingType"`
	Status          string   `json:"status"`
	Price           float64  `json:"price"`
	PriceNegotiable bool     `json:"priceNegotiable"`
	District        string   `json:"district"`
	City            string   `json:"city"`
	Address         string   `json:"address,omitempty"`
	Size            float64  `json:"size,omitempty"`
	SizeUnit        string   `json:"sizeUnit,omitempty"`
	Bedrooms        int      `json:"bedrooms,omitempty"`
	Bathrooms       int      `json:"bathrooms,omitempty"`
	Features        []string `json:"features,omitempty"`
	Images          []string `json:"images,omitempty"`
	ContactName     string   `json:"contactName,omitempty"`
	ContactPhone    string   `json:"contactPhone,omitempty"`
	ContactWhatsapp string   `json:"contactWhatsapp,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	ExpiresAt       string   `json:"expiresAt,omitempty"`
}

// Listing statuses.
const (
	ListingStatusPending = "pending"
	ListingStatusActive  = "active"
)
