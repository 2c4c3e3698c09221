// Package cola defines core types shared across the scraper, storage, and
// sync subsystems.
package cola

// Item is the canonical record for one approved label. The TTB ID is the
// natural key across every subsystem; it stays a string because leading
// zeros are significant and must survive a round trip through storage.
type Item struct {
	// Fields from the list page.
	TTBID         string `json:"ttb_id"`
	PermitNo      string `json:"permit_no,omitempty"`
	SerialNumber  string `json:"serial_number,omitempty"`
	CompletedDate string `json:"completed_date,omitempty"`
	FancifulName  string `json:"fanciful_name,omitempty"`
	BrandName     string `json:"brand_name,omitempty"`
	OriginCode    string `json:"origin_code,omitempty"`
	OriginDesc    string `json:"origin_desc,omitempty"`
	ClassType     string `json:"class_type,omitempty"`
	ClassTypeDesc string `json:"class_type_desc,omitempty"`
	URL           string `json:"url"`

	// Additional fields from the detail page.
	Status              string `json:"status,omitempty"`
	VendorCode          string `json:"vendor_code,omitempty"`
	TypeOfApplication   string `json:"type_of_application,omitempty"`
	ForSaleIn           string `json:"for_sale_in,omitempty"`
	TotalBottleCapacity string `json:"total_bottle_capacity,omitempty"`
	GrapeVarietals      string `json:"grape_varietals,omitempty"`
	WineVintage         string `json:"wine_vintage,omitempty"`
	Formula             string `json:"formula,omitempty"`
	LabNo               string `json:"lab_no,omitempty"`
	ApprovalDate        string `json:"approval_date,omitempty"`
	Qualifications      string `json:"qualifications,omitempty"`

	// Applicant information.
	ApplicantName    string `json:"applicant_name,omitempty"`
	ApplicantAddress string `json:"applicant_address,omitempty"`
	ApplicantCity    string `json:"applicant_city,omitempty"`
	ApplicantState   string `json:"applicant_state,omitempty"`
	ApplicantZip     string `json:"applicant_zip,omitempty"`

	// Contact information.
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// SyncStats summarizes one sync invocation. It is returned to the caller and
// never persisted.
type SyncStats struct {
	Total      int `json:"total"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Deprecated int `json:"deprecated"`
	Deleted    int `json:"deleted"`
}

// IDSet is the existing-state snapshot read fresh on every sync invocation.
type IDSet map[string]struct{}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// NewIDSet builds an IDSet from the given identifiers.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
