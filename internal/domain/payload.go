package domain

// CanonicalEsimPayload is the normalized activation bundle produced from any
// of the vendor response shapes. Individual fields are optional, but a payload
// is only usable when at least one of LPA / ActivationCode is present.
type CanonicalEsimPayload struct {
	VendorID       string `json:"vendorId,omitempty"`
	LPA            string `json:"lpa,omitempty"`
	ActivationCode string `json:"activationCode,omitempty"`
	ICCID          string `json:"iccid,omitempty"`
}

func (p CanonicalEsimPayload) Usable() bool {
	return p.LPA != "" || p.ActivationCode != ""
}

// OrderPayload carries the vendor-order parameters for one provisioning job.
// Documented fields are typed; vendor-specific extras pass through Extra.
type OrderPayload struct {
	Sku         string            `json:"sku"`
	PackageType string            `json:"package_type,omitempty"`
	Count       int               `json:"count"`
	Days        int               `json:"days,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}
