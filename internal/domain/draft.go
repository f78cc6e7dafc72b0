package domain

// Property types accepted in a draft. The model is prompted with exactly
// this vocabulary, so the set is closed.
const (
	PropertyTypeLand      = "land"
	PropertyTypeHouse     = "house"
	PropertyTypeApartment = "apartment"
	PropertyTypeCondo     = "condo"
	PropertyTypeTownhouse = "townhouse"
)

// Land size units.
const (
	LandUnitPerches    = "perches"
	LandUnitAcres      = "acres"
	LandUnitSquareFeet = "square_feet"
)

// Price units.
const (
	PriceUnitTotal    = "total"
	PriceUnitPerPerch = "per_perch"
	PriceUnitPerAcre  = "per_acre"
)

// PropertyDraft is the accumulated, partial representation of a listing
// being built through conversation. The JSON tags match the keys the model
// emits inside PROPERTY_DATA blocks. Zero values mean "not yet provided";
// merge semantics live in the draft package.
type PropertyDraft struct {
	PropertyType    string   `json:"property_type,omitempty"`
	LandSize        float64  `json:"land_size,omitempty"`
	LandUnit        string   `json:"land_unit,omitempty"`
	Price           float64  `json:"price,omitempty"`
	PriceUnit       string   `json:"price_unit,omitempty"`
	District        string   `json:"district,omitempty"`
	City            string   `json:"city,omitempty"`
	Location        string   `json:"location,omitempty"`
	Bedrooms        int      `json:"bedrooms,omitempty"`
	Bathrooms       int      `json:"bathrooms,omitempty"`
	Features        []string `json:"features,omitempty"`
	ContactPhone    string   `json:"contact_phone,omitempty"`
	ContactWhatsapp string   `json:"contact_whatsapp,omitempty"`
	Images          []string `json:"images,omitempty"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// IsEmpty reports whether no field of the draft has been populated.
func (d PropertyDraft) IsEmpty() bool {
	return d.PropertyType == "" && d.LandSize == 0 && d.LandUnit == "" &&
		d.Price == 0 && d.PriceUnit == "" && d.District == "" && d.City == "" &&
		d.Location == "" && d.Bedrooms == 0 && d.Bathrooms == 0 &&
		len(d.Features) == 0 && d.ContactPhone == "" && d.ContactWhatsapp == "" &&
		len(d.Images) == 0 && d.Title == "" && d.Description == ""
}

// ListingPreview is the model-supplied summary emitted in LISTING_PREVIEW
// blocks once enough of the draft is known.
type ListingPreview struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	ReadyToPublish bool   `json:"ready_to_publish"`
}

// PropertyCard is a display-only search result emitted in PROPERTIES
// blocks. It is surfaced to the caller verbatim and never merged into a
// draft.
type PropertyCard struct {
	ID      string `json:"id"`
	Price   string `json:"price"`
	Address string `json:"address"`
	Specs   string `json:"specs"`
	Image   string `json:"image"`
}
