package scraper

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// detailFieldKeys maps on-page labels to canonical field keys. The detail
// page renders each value as a div.data following a div.label; labels that
// never appear simply produce no entry.
var detailFieldKeys = map[string]string{
	"status":                "status",
	"vendor code":           "vendor_code",
	"type of application":   "type_of_application",
	"for sale in":           "for_sale_in",
	"total bottle capacity": "total_bottle_capacity",
	"grape varietal(s)":     "grape_varietals",
	"wine vintage":          "wine_vintage",
	"formula":               "formula",
	"lab no.":               "lab_no",
	"date of approval":      "approval_date",
	"qualifications":        "qualifications",
	"applicant name":        "applicant_name",
	"address":               "applicant_address",
	"city":                  "applicant_city",
	"state":                 "applicant_state",
	"zip code":              "applicant_zip",
	"contact name":          "contact_name",
	"phone number":          "contact_phone",
	"email address":         "contact_email",
}

// ExtractDetailFields performs best-effort label-anchored extraction on a
// detail page. Missing landmarks yield a sparse map, never an error: this
// markup is brittle and absence of a label means "field not present".
func ExtractDetailFields(r io.Reader) map[string]string {
	fields := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fields
	}

	doc.Find("div.label").Each(func(_ int, label *goquery.Selection) {
		key, ok := detailFieldKeys[strings.ToLower(strings.TrimSpace(label.Text()))]
		if !ok {
			return
		}
		value := strings.TrimSpace(label.NextFiltered("div.data").Text())
		if value == "" {
			// Some sections put the label and value in adjacent table cells.
			value = strings.TrimSpace(label.Closest("td").Next().Find("div.data").First().Text())
		}
		if value != "" {
			if _, exists := fields[key]; !exists {
				fields[key] = value
			}
		}
	})

	return fields
}

func applyDetailFields(item *cola.Item, fields map[string]string) {
	assign := func(dst *string, key string) {
		if v, ok := fields[key]; ok {
			*dst = v
		}
	}
	assign(&item.Status, "status")
	assign(&item.VendorCode, "vendor_code")
	assign(&item.TypeOfApplication, "type_of_application")
	assign(&item.ForSaleIn, "for_sale_in")
	assign(&item.TotalBottleCapacity, "total_bottle_capacity")
	assign(&item.GrapeVarietals, "grape_varietals")
	assign(&item.WineVintage, "wine_vintage")
	assign(&item.Formula, "formula")
	assign(&item.LabNo, "lab_no")
	assign(&item.ApprovalDate, "approval_date")
	assign(&item.Qualifications, "qualifications")
	assign(&item.ApplicantName, "applicant_name")
	assign(&item.ApplicantAddress, "applicant_address")
	assign(&item.ApplicantCity, "applicant_city")
	assign(&item.ApplicantState, "applicant_state")
	assign(&item.ApplicantZip, "applicant_zip")
	assign(&item.ContactName, "contact_name")
	assign(&item.ContactPhone, "contact_phone")
	assign(&item.ContactEmail, "contact_email")
}
