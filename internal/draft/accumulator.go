// Package draft owns the in-progress property listing built up over a
// conversation: merge semantics for partial updates and a conservative
// heuristic extractor for user-authored free text.
package draft

import (
	"fmt"
	"strings"

	"landsale-agent/internal/domain"
)

// Accumulator holds the single PropertyDraft for one conversation.
// Scalar fields follow a fill-forward law: a non-empty incoming value
// replaces the current one, an empty incoming value never regresses a
// populated field. Array fields (features, images) are unioned in
// first-seen order, never replaced.
type Accumulator struct {
	d domain.PropertyDraft
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// NewAccumulatorFrom seeds an accumulator with a previously persisted draft.
func NewAccumulatorFrom(d domain.PropertyDraft) *Accumulator {
	a := &Accumulator{}
	a.Update(d)
	return a
}

// Draft returns a copy of the current draft. The copy's slices are detached
// so callers cannot mutate accumulator state.
func (a *Accumulator) Draft() domain.PropertyDraft {
	d := a.d
	d.Features = append([]string(nil), a.d.Features...)
	d.Images = append([]string(nil), a.d.Images...)
	return d
}

// Update merges a partial draft. Empty partials are a no-op.
func (a *Accumulator) Update(p domain.PropertyDraft) {
	setString(&a.d.PropertyType, p.PropertyType)
	setFloat(&a.d.LandSize, p.LandSize)
	setString(&a.d.LandUnit, p.LandUnit)
	setFloat(&a.d.Price, p.Price)
	setString(&a.d.PriceUnit, p.PriceUnit)
	setString(&a.d.District, p.District)
	setString(&a.d.City, p.City)
	setString(&a.d.Location, p.Location)
	setInt(&a.d.Bedrooms, p.Bedrooms)
	setInt(&a.d.Bathrooms, p.Bathrooms)
	setString(&a.d.ContactPhone, p.ContactPhone)
	setString(&a.d.ContactWhatsapp, p.ContactWhatsapp)
	setString(&a.d.Title, p.Title)
	setString(&a.d.Description, p.Description)
	a.d.Features = unionStrings(a.d.Features, p.Features)
	a.d.Images = unionStrings(a.d.Images, p.Images)
}

// ReadyToPublish reports whether the minimum publishable fields are
// populated: a property type, a district or city, and a price. Once true it
// stays true; Update never empties a populated field.
func (a *Accumulator) ReadyToPublish() bool {
	return a.d.PropertyType != "" &&
		(a.d.District != "" || a.d.City != "") &&
		a.d.Price > 0
}

// Reset clears the draft to empty defaults.
func (a *Accumulator) Reset() {
	a.d = domain.PropertyDraft{}
}

// Render returns the draft's title and description, preferring values the
// model (or user) supplied and falling back to a deterministic template.
func (a *Accumulator) Render() (title, description string) {
	title = a.d.Title
	if title == "" {
		title = buildTitle(a.d)
	}
	description = a.d.Description
	if description == "" {
		description = buildDescription(a.d)
	}
	return title, description
}

// Summary renders the current draft into a human-readable blurb. It is the
// deterministic fallback used when the model does not supply a
// LISTING_PREVIEW of its own.
func (a *Accumulator) Summary() string {
	title, desc := a.Render()
	if desc == "" {
		return title
	}
	return title + "\n\n" + desc
}

func buildTitle(d domain.PropertyDraft) string {
	var parts []string
	if d.LandSize > 0 {
		parts = append(parts, trimFloat(d.LandSize), unitLabel(d.LandUnit))
	}
	parts = append(parts, typeLabel(d.PropertyType), "for Sale")
	if loc := placeLabel(d); loc != "" {
		parts = append(parts, "in", loc)
	}
	return strings.Join(compactStrings(parts), " ")
}

func buildDescription(d domain.PropertyDraft) string {
	var b strings.Builder
	b.WriteString(typeLabel(d.PropertyType))
	if d.LandSize > 0 {
		fmt.Fprintf(&b, " of %s %s", trimFloat(d.LandSize), strings.ToLower(unitLabel(d.LandUnit)))
	}
	if loc := placeLabel(d); loc != "" {
		b.WriteString(" for sale in " + loc)
	} else {
		b.WriteString(" for sale")
	}
	b.WriteString(".")
	if d.Bedrooms > 0 || d.Bathrooms > 0 {
		fmt.Fprintf(&b, " %d bedrooms, %d bathrooms.", d.Bedrooms, d.Bathrooms)
	}
	if len(d.Features) > 0 {
		b.WriteString(" Features " + strings.Join(d.Features, ", ") + ".")
	}
	if d.Price > 0 {
		b.WriteString(" Asking price " + FormatRupees(d.Price))
		switch d.PriceUnit {
		case domain.PriceUnitPerPerch:
			b.WriteString(" per perch")
		case domain.PriceUnitPerAcre:
			b.WriteString(" per acre")
		}
		b.WriteString(".")
	}
	return b.String()
}

// FormatRupees renders a whole-rupee amount as "Rs. 5,000,000".
func FormatRupees(amount float64) string {
	n := int64(amount)
	s := fmt.Sprintf("%d", n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)
	out := "Rs. " + strings.Join(groups, ",")
	if neg {
		out = "Rs. -" + strings.Join(groups, ",")
	}
	return out
}

func typeLabel(propertyType string) string {
	switch propertyType {
	case domain.PropertyTypeLand:
		return "Land"
	case domain.PropertyTypeHouse:
		return "House"
	case domain.PropertyTypeApartment:
		return "Apartment"
	case domain.PropertyTypeCondo:
		return "Condo"
	case domain.PropertyTypeTownhouse:
		return "Townhouse"
	case "":
		return "Property"
	default:
		return strings.ToUpper(propertyType[:1]) + propertyType[1:]
	}
}

func unitLabel(unit string) string {
	switch unit {
	case domain.LandUnitPerches:
		return "Perch"
	case domain.LandUnitAcres:
		return "Acre"
	case domain.LandUnitSquareFeet:
		return "Sq Ft"
	default:
		return unit
	}
}

func placeLabel(d domain.PropertyDraft) string {
	switch {
	case d.City != "" && d.District != "" && !strings.EqualFold(d.City, d.District):
		return d.City + ", " + d.District
	case d.City != "":
		return d.City
	default:
		return d.District
	}
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func compactStrings(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func unionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, s := range incoming {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		existing = append(existing, s)
	}
	return existing
}
