package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"landsale-agent/internal/domain"
)

const (
	listingSKMeta = "META#"

	// Listings stay visible for 30 days before requiring renewal.
	listingLifetime = 30 * 24 * time.Hour
)

// ListingStore wraps the DynamoDB table holding published listings. Items
// keep the document layout of the listings table: i18n title/description
// JSON, price in cents, and location/contact/attributes folded into JSON
// columns.
type ListingStore struct {
	api       dynamodbAPI
	tableName string
}

// NewListingStore creates a listing store.
func NewListingStore(api dynamodbAPI, tableName string) (*ListingStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ListingStore{api: api, tableName: tableName}, nil
}

func listingPK(id string) string {
	return "LISTING#" + id
}

// locationDoc, contactDoc and attributesDoc mirror the JSON columns of the
// listings table.
type locationDoc struct {
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Address  string `json:"address,omitempty"`
}

type contactDoc struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Whatsapp string `json:"whatsapp,omitempty"`
}

type attributesDoc struct {
	Size      float64 `json:"size,omitempty"`
	SizeUnit  string  `json:"sizeUnit,omitempty"`
	Bedrooms  int     `json:"bedrooms,omitempty"`
	Bathrooms int     `json:"bathrooms,omitempty"`
}

// CreateListing persists a new listing. It assigns the id, slug, creation
// and expiry timestamps and returns the stored record.
func (s *ListingStore) CreateListing(ctx context.Context, listing domain.Listing) (domain.Listing, error) {
	if strings.TrimSpace(listing.UserID) == "" {
		return domain.Listing{}, errors.New("repository: CreateListing: user id is required")
	}
	if strings.TrimSpace(listing.Title) == "" {
		return domain.Listing{}, errors.New("repository: CreateListing: title is required")
	}

	listing.ID = newListingID()
	listing.Slug = slugify(listing.Title) + "-" + listing.ID[:8]
	if listing.Status == "" {
		listing.Status = domain.ListingStatusPending
	}
	now := time.Now().UTC()
	listing.CreatedAt = now.Format(time.RFC3339)
	listing.ExpiresAt = now.Add(listingLifetime).Format(time.RFC3339)

	item, err := listingItem(listing)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("repository: CreateListing encode: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("repository: CreateListing: %w", err)
	}
	return listing, nil
}

// GetListing reads a listing by id.
func (s *ListingStore) GetListing(ctx context.Context, id string) (domain.Listing, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: listingPK(id)},
			"SK": &types.AttributeValueMemberS{Value: listingSKMeta},
		},
	})
	if err != nil {
		return domain.Listing{}, false, fmt.Errorf("repository: GetListing: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Listing{}, false, nil
	}
	listing, err := itemToListing(out.Item)
	if err != nil {
		return domain.Listing{}, false, fmt.Errorf("repository: GetListing decode: %w", err)
	}
	return listing, true, nil
}

// listingItem translates the flat caller-facing shape into the JSON-column
// document layout.
func listingItem(l domain.Listing) (map[string]types.AttributeValue, error) {
	titleJSON, err := json.Marshal(map[string]string{"en": l.Title})
	if err != nil {
		return nil, err
	}
	descriptionJSON, err := json.Marshal(map[string]string{"en": l.Description})
	if err != nil {
		return nil, err
	}
	locationJSON, err := json.Marshal(locationDoc{District: l.District, City: l.City, Address: l.Address})
	if err != nil {
		return nil, err
	}
	contactJSON, err := json.Marshal(contactDoc{Name: l.ContactName, Phone: l.ContactPhone, Whatsapp: l.ContactWhatsapp})
	if err != nil {
		return nil, err
	}
	attributesJSON, err := json.Marshal(attributesDoc{Size: l.Size, SizeUnit: l.SizeUnit, Bedrooms: l.Bedrooms, Bathrooms: l.Bathrooms})
	if err != nil {
		return nil, err
	}

	item := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: listingPK(l.ID)},
		"SK":              &types.AttributeValueMemberS{Value: listingSKMeta},
		"id":              &types.AttributeValueMemberS{Value: l.ID},
		"userId":          &types.AttributeValueMemberS{Value: l.UserID},
		"title":           &types.AttributeValueMemberS{Value: string(titleJSON)},
		"description":     &types.AttributeValueMemberS{Value: string(descriptionJSON)},
		"slug":            &types.AttributeValueMemberS{Value: l.Slug},
		"listingType":     &types.AttributeValueMemberS{Value: l.ListingType},
		"status":          &types.AttributeValueMemberS{Value: l.Status},
		"priceCents":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rupeesToCents(l.Price))},
		"priceNegotiable": &types.AttributeValueMemberBOOL{Value: l.PriceNegotiable},
		"location":        &types.AttributeValueMemberS{Value: string(locationJSON)},
		"contact":         &types.AttributeValueMemberS{Value: string(contactJSON)},
		"attributes":      &types.AttributeValueMemberS{Value: string(attributesJSON)},
		"createdAt":       &types.AttributeValueMemberS{Value: l.CreatedAt},
		"expiresAt":       &types.AttributeValueMemberS{Value: l.ExpiresAt},
	}
	if len(l.Features) > 0 {
		item["features"] = stringList(l.Features)
	}
	if len(l.Images) > 0 {
		item["images"] = stringList(l.Images)
	}
	return item, nil
}

// itemToListing translates a stored document back into the flat shape.
func itemToListing(item map[string]types.AttributeValue) (domain.Listing, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Listing{}, err
	}
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Listing{}, err
	}
	priceCents, err := int64Attr(item, "priceCents")
	if err != nil {
		return domain.Listing{}, err
	}

	l := domain.Listing{
		ID:     id,
		UserID: userID,
		Price:  centsToRupees(priceCents),
	}
	l.Slug, _ = strAttr(item, "slug")
	l.ListingType, _ = strAttr(item, "listingType")
	l.Status, _ = strAttr(item, "status")
	l.CreatedAt, _ = strAttr(item, "createdAt")
	l.ExpiresAt, _ = strAttr(item, "expiresAt")
	l.PriceNegotiable = boolAttr(item, "priceNegotiable")
	l.Features = stringListAttr(item, "features")
	l.Images = stringListAttr(item, "images")

	if raw, err := strAttr(item, "title"); err == nil {
		l.Title = i18nValue(raw)
	}
	if raw, err := strAttr(item, "description"); err == nil {
		l.Description = i18nValue(raw)
	}
	if raw, err := strAttr(item, "location"); err == nil {
		var loc locationDoc
		if json.Unmarshal([]byte(raw), &loc) == nil {
			l.District, l.City, l.Address = loc.District, loc.City, loc.Address
		}
	}
	if raw, err := strAttr(item, "contact"); err == nil {
		var c contactDoc
		if json.Unmarshal([]byte(raw), &c) == nil {
			l.ContactName, l.ContactPhone, l.ContactWhatsapp = c.Name, c.Phone, c.Whatsapp
		}
	}
	if raw, err := strAttr(item, "attributes"); err == nil {
		var a attributesDoc
		if json.Unmarshal([]byte(raw), &a) == nil {
			l.Size, l.SizeUnit = a.Size, a.SizeUnit
			l.Bedrooms, l.Bathrooms = a.Bedrooms, a.Bathrooms
		}
	}
	return l, nil
}

// i18nValue extracts the English value from an i18n JSON column, falling
// back to the raw string for legacy flat records.
func i18nValue(raw string) string {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		if v, ok := m["en"]; ok {
			return v
		}
	}
	return raw
}

func rupeesToCents(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

func centsToRupees(cents int64) float64 {
	return float64(cents) / 100
}

// slugify lowercases the title and replaces non-alphanumeric runs with
// single hyphens.
func slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func stringList(values []string) types.AttributeValue {
	items := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		items = append(items, &types.AttributeValueMemberS{Value: v})
	}
	return &types.AttributeValueMemberL{Value: items}
}

func stringListAttr(item map[string]types.AttributeValue, key string) []string {
	v, ok := item[key]
	if !ok {
		return nil
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list.Value))
	for _, el := range list.Value {
		if s, ok := el.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	n, err := intAttr(item, key)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

var newListingID = func() string {
	return uuid.NewString()
}
