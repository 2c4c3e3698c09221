package airtable

import (
	"fmt"
	"strings"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// Column names in the destination table. The TTB ID column is a text field:
// identifiers carry significant leading zeros and must never pass through a
// numeric type.
const (
	fieldTTBID         = "TTB ID"
	fieldPermitNo      = "Permit No"
	fieldSerialNumber  = "Serial Number"
	fieldCompletedDate = "Completed Date"
	fieldFancifulName  = "Fanciful Name"
	fieldBrandName     = "Brand Name"
	fieldOriginCode    = "Origin Code"
	fieldOriginDesc    = "Origin Desc"
	fieldClassType     = "Class/Type"
	fieldClassTypeDesc = "Class/Type Desc"
	fieldURL           = "URL"
	fieldStatus        = "Status"
	fieldVendorCode    = "Vendor Code"
	fieldApprovalDate  = "Approval Date"
	fieldApplicantName = "Applicant Name"
	fieldDeprecated    = "Deprecated"
	fieldDocument      = "Label Document"
)

// itemFields converts an item to the destination record shape. Date columns
// are typed Date fields, so unparseable values are omitted rather than sent
// raw. Deprecated is always reset: a record present in the source snapshot
// is live by definition.
func itemFields(item cola.Item) map[string]any {
	fields := map[string]any{
		fieldTTBID:         item.TTBID,
		fieldPermitNo:      item.PermitNo,
		fieldSerialNumber:  item.SerialNumber,
		fieldFancifulName:  item.FancifulName,
		fieldBrandName:     item.BrandName,
		fieldOriginCode:    item.OriginCode,
		fieldOriginDesc:    item.OriginDesc,
		fieldClassType:     item.ClassType,
		fieldClassTypeDesc: item.ClassTypeDesc,
		fieldURL:           item.URL,
		fieldStatus:        item.Status,
		fieldVendorCode:    item.VendorCode,
		fieldApplicantName: item.ApplicantName,
		fieldDeprecated:    false,
	}
	if iso, ok := cola.NormalizeDate(item.CompletedDate); ok {
		fields[fieldCompletedDate] = iso
	}
	if iso, ok := cola.NormalizeDate(item.ApprovalDate); ok {
		fields[fieldApprovalDate] = iso
	}
	return fields
}

// itemFromFields rebuilds an item from a stored record for change
// comparison.
func itemFromFields(fields map[string]any) cola.Item {
	str := func(key string) string {
		v, _ := fields[key].(string)
		return v
	}
	return cola.Item{
		TTBID:         str(fieldTTBID),
		PermitNo:      str(fieldPermitNo),
		SerialNumber:  str(fieldSerialNumber),
		CompletedDate: str(fieldCompletedDate),
		FancifulName:  str(fieldFancifulName),
		BrandName:     str(fieldBrandName),
		OriginCode:    str(fieldOriginCode),
		OriginDesc:    str(fieldOriginDesc),
		ClassType:     str(fieldClassType),
		ClassTypeDesc: str(fieldClassTypeDesc),
		URL:           str(fieldURL),
		Status:        str(fieldStatus),
		VendorCode:    str(fieldVendorCode),
		ApprovalDate:  str(fieldApprovalDate),
		ApplicantName: str(fieldApplicantName),
	}
}

// fieldsChanged compares a stored record against an incoming item on the
// synced columns only. The incoming item is projected through the same
// column mapping so fields that never reach the table cannot cause
// perpetual rewrites.
func fieldsChanged(stored map[string]any, incoming cola.Item) bool {
	return !cola.ItemsEquivalent(itemFromFields(stored), itemFromFields(itemFields(incoming)))
}

func isDeprecated(fields map[string]any) bool {
	v, _ := fields[fieldDeprecated].(bool)
	return v
}

// idFilterFormula builds the lookup formula for one identifier. The value is
// quoted as text and single quotes are escaped per the formula language.
func idFilterFormula(ttbID string) string {
	return fmt.Sprintf("{%s} = '%s'", fieldTTBID, strings.ReplaceAll(ttbID, "'", "\\'"))
}
