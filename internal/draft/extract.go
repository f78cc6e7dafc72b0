package draft

import (
	"regexp"
	"strconv"
	"strings"

	"landsale-agent/internal/domain"
)

// districts is the Sri Lankan administrative district gazetteer. A district
// word in user text sets the draft's district directly.
var districts = []string{
	"Colombo", "Gampaha", "Kalutara", "Kandy", "Matale", "Nuwara Eliya",
	"Galle", "Matara", "Hambantota", "Jaffna", "Kilinochchi", "Mannar",
	"Vavuniya", "Mullaitivu", "Batticaloa", "Ampara", "Trincomalee",
	"Kurunegala", "Puttalam", "Anuradhapura", "Polonnaruwa", "Badulla",
	"Monaragala", "Ratnapura", "Kegalle",
}

// cities maps well-known city/area names to their district. Matching a city
// sets both fields; a bare district match sets only the district.
var cities = map[string]string{
	"Nugegoda":       "Colombo",
	"Dehiwala":       "Colombo",
	"Mount Lavinia":  "Colombo",
	"Maharagama":     "Colombo",
	"Kottawa":        "Colombo",
	"Battaramulla":   "Colombo",
	"Malabe":         "Colombo",
	"Moratuwa":       "Colombo",
	"Kolonnawa":      "Colombo",
	"Homagama":       "Colombo",
	"Piliyandala":    "Colombo",
	"Negombo":        "Gampaha",
	"Ja-Ela":         "Gampaha",
	"Wattala":        "Gampaha",
	"Kadawatha":      "Gampaha",
	"Kiribathgoda":   "Gampaha",
	"Ragama":         "Gampaha",
	"Panadura":       "Kalutara",
	"Horana":         "Kalutara",
	"Beruwala":       "Kalutara",
	"Peradeniya":     "Kandy",
	"Katugastota":    "Kandy",
	"Gampola":        "Kandy",
	"Unawatuna":      "Galle",
	"Hikkaduwa":      "Galle",
	"Ambalangoda":    "Galle",
	"Weligama":       "Matara",
	"Mirissa":        "Matara",
	"Tangalle":       "Hambantota",
	"Chilaw":         "Puttalam",
	"Dambulla":       "Matale",
	"Ella":           "Badulla",
	"Bandarawela":    "Badulla",
	"Hatton":         "Nuwara Eliya",
	"Embilipitiya":   "Ratnapura",
	"Kuliyapitiya":   "Kurunegala",
	"Point Pedro":    "Jaffna",
	"Kattankudy":     "Batticaloa",
	"Kalmunai":       "Ampara",
	"Kinniya":        "Trincomalee",
	"Mawanella":      "Kegalle",
	"Wellawaya":      "Monaragala",
	"Medawachchiya":  "Anuradhapura",
	"Hingurakgoda":   "Polonnaruwa",
	"Mannar Town":    "Mannar",
	"Mullaitivu Town": "Mullaitivu",
}

var (
	reMillion  = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:million|mn)\b`)
	reLakh     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*lakhs?\b`)
	reRupees   = regexp.MustCompile(`(?i)\b(?:rs\.?|lkr)\s*([\d,]+(?:\.\d+)?)\s*(m\b|million\b)?`)
	rePerch    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*perch(?:es)?\b`)
	reAcre     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*acres?\b`)
	reSqft     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:sq\.?\s*(?:ft|feet)|sqft|square\s*feet)\b`)
	reBedroom  = regexp.MustCompile(`(?i)\b(\d+)\s*bed(?:room)?s?\b`)
	reBathroom = regexp.MustCompile(`(?i)\b(\d+)\s*bath(?:room)?s?\b`)
	rePhone    = regexp.MustCompile(`\b\d{9,11}\b`)
	reType     = regexp.MustCompile(`(?i)\b(land|house|apartment|condo|townhouse)\b`)
	rePerPerch = regexp.MustCompile(`(?i)\bper\s+perch\b`)
	rePerAcre  = regexp.MustCompile(`(?i)\bper\s+acre\b`)
)

// Extract scans user-authored free text for property attributes it is
// confident about. It is deliberately conservative: a bare number with no
// unit or currency cue is never guessed to be a price or a size, so false
// negatives are common and false positives are not.
func Extract(text string) domain.PropertyDraft {
	var d domain.PropertyDraft

	if m := reType.FindStringSubmatch(text); m != nil {
		d.PropertyType = strings.ToLower(m[1])
	}

	extractLandSize(text, &d)
	extractPrice(text, &d)

	if m := reBedroom.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.Bedrooms = n
		}
	}
	if m := reBathroom.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.Bathrooms = n
		}
	}
	if m := rePhone.FindString(text); m != "" {
		d.ContactPhone = m
	}

	extractPlace(text, &d)
	return d
}

func extractLandSize(text string, d *domain.PropertyDraft) {
	if m := rePerch.FindStringSubmatch(text); m != nil {
		d.LandSize = parseNumber(m[1])
		d.LandUnit = domain.LandUnitPerches
		return
	}
	if m := reAcre.FindStringSubmatch(text); m != nil {
		d.LandSize = parseNumber(m[1])
		d.LandUnit = domain.LandUnitAcres
		return
	}
	if m := reSqft.FindStringSubmatch(text); m != nil {
		d.LandSize = parseNumber(m[1])
		d.LandUnit = domain.LandUnitSquareFeet
	}
}

func extractPrice(text string, d *domain.PropertyDraft) {
	switch {
	case reMillion.MatchString(text):
		m := reMillion.FindStringSubmatch(text)
		d.Price = parseNumber(m[1]) * 1_000_000
	case reLakh.MatchString(text):
		m := reLakh.FindStringSubmatch(text)
		d.Price = parseNumber(m[1]) * 100_000
	case reRupees.MatchString(text):
		m := reRupees.FindStringSubmatch(text)
		d.Price = parseNumber(m[1])
		if m[2] != "" {
			// "LKR 5M" style magnitude suffix.
			d.Price *= 1_000_000
		}
	default:
		return
	}

	switch {
	case rePerPerch.MatchString(text):
		d.PriceUnit = domain.PriceUnitPerPerch
	case rePerAcre.MatchString(text):
		d.PriceUnit = domain.PriceUnitPerAcre
	default:
		d.PriceUnit = domain.PriceUnitTotal
	}
}

func extractPlace(text string, d *domain.PropertyDraft) {
	lower := strings.ToLower(text)
	for city, district := range cities {
		if containsWord(lower, strings.ToLower(city)) {
			d.City = city
			d.District = district
			break
		}
	}
	for _, district := range districts {
		if containsWord(lower, strings.ToLower(district)) {
			d.District = district
			break
		}
	}
}

// containsWord reports whether needle occurs in haystack on word
// boundaries. Both arguments must already be lower-cased.
func containsWord(haystack, needle string) bool {
	for idx := 0; ; {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func parseNumber(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
