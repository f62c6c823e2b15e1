package content

import (
	"context"
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"novasite/internal/cms"
	"novasite/internal/listing"
)

var (
	countryQueryOnce sync.Once
	countryQuery     *gountries.Query
	countryCaser     = cases.Title(language.English)
)

// CountryName resolves a lowercase ISO alpha-2 code to a display name.
// Unknown or empty codes come back as "Unknown".
func CountryName(code string) string {
	if code == "" {
		return "Unknown"
	}
	countryQueryOnce.Do(func() { countryQuery = gountries.New() })
	country, err := countryQuery.FindCountryByAlpha(strings.ToUpper(code))
	if err != nil {
		return "Unknown"
	}
	return countryCaser.String(country.Name.Common)
}

// VisitorsPage holds one server-paginated slice of the visitors collection.
type VisitorsPage struct {
	Items     []cms.Record
	Page      int
	PageSize  int
	PageCount int
	Total     int
}

// LoadVisitors fetches one page of visitor records. Unlike every other
// admin screen, the visitors collection is too large to pull whole, so
// search and paging are delegated to the content API and the listing
// controller is bypassed.
func LoadVisitors(ctx context.Context, client *cms.Client, page, pageSize int) (*VisitorsPage, error) {
	if page < 1 {
		page = 1
	}
	valid := false
	for _, n := range listing.PageSizes {
		if pageSize == n {
			valid = true
			break
		}
	}
	if !valid {
		pageSize = listing.PageSizes[0]
	}

	items, pagination, err := client.ListPage(ctx, cms.CollectionVisitors, page, pageSize)
	if err != nil {
		return nil, err
	}

	for _, r := range items {
		r["countryName"] = CountryName(r.String("country"))
	}

	vp := &VisitorsPage{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    len(items),
	}
	if pagination.PageCount > 0 {
		vp.Page = pagination.Page
		vp.PageCount = pagination.PageCount
		vp.Total = int(pagination.Total)
	}
	return vp, nil
}

// VisitorCSVColumns is the export column list for the visitors screen.
// Exports cover the fetched page only; the full collection stays remote.
func VisitorCSVColumns() []listing.Column[cms.Record] {
	return []listing.Column[cms.Record]{
		{Header: "Visitor ID", Value: field("visitorId")},
		{Header: "Country", Value: func(r cms.Record) string { return CountryName(r.String("country")) }},
		{Header: "Browser", Value: field("browser")},
		{Header: "OS", Value: field("os")},
		{Header: "Device", Value: field("device")},
		{Header: "Page Views", Value: func(r cms.Record) string {
			if n := r.String("pageViews"); n != "" {
				return n
			}
			return "0"
		}},
		{Header: "First Seen", Value: field("createdAt")},
	}
}
