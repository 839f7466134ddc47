package model

import (
	"fmt"
	"strings"
)

type CertificateStatus string

const (
	CertificateVerified CertificateStatus = "verified"
	CertificatePending  CertificateStatus = "pending"
	CertificateRetired  CertificateStatus = "retired"
)

// Certificate is a renewable energy certificate offered for tokenization.
// It is selected by the caller and never modified here.
type Certificate struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Source   string            `json:"source"`
	Location string            `json:"location"`
	Amount   float64           `json:"amount_mwh"`
	Status   CertificateStatus `json:"status"`
	ImageURL string            `json:"image_url,omitempty"`
}

func (c Certificate) Verified() bool {
	return c.Status == CertificateVerified
}

// DefaultDescription is the token description used when the request leaves it empty.
func (c Certificate) DefaultDescription() string {
	return fmt.Sprintf("This token represents fractional ownership of %g MWh of %s energy generated in %s.",
		c.Amount, strings.ToLower(c.Source), c.Location)
}
