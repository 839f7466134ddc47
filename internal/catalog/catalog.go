// Package catalog serves the certificates a user may pick for tokenization.
package catalog

import (
	"fmt"
	"sort"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
)

// Catalog is an immutable, id indexed set of certificates. Safe for concurrent use.
type Catalog struct {
	byID map[string]model.Certificate
	ids  []string
}

func New(certificates []model.Certificate) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]model.Certificate, len(certificates))}

	for _, cert := range certificates {
		if cert.ID == "" {
			return nil, fmt.Errorf("certificate %q has no id", cert.Name)
		}
		if _, dup := c.byID[cert.ID]; dup {
			return nil, fmt.Errorf("duplicate certificate id %s", cert.ID)
		}
		c.byID[cert.ID] = cert
		c.ids = append(c.ids, cert.ID)
	}
	sort.Strings(c.ids)

	return c, nil
}

// FromConfig builds the catalog from the certificates section of the config file.
func FromConfig(certs []config.CertificateConfig) (*Catalog, error) {
	list := make([]model.Certificate, 0, len(certs))
	for _, cc := range certs {
		list = append(list, model.Certificate{
			ID:       cc.ID,
			Name:     cc.Name,
			Source:   cc.Source,
			Location: cc.Location,
			Amount:   cc.Amount,
			Status:   model.CertificateStatus(cc.Status),
			ImageURL: cc.ImageURL,
		})
	}

	return New(list)
}

func (c *Catalog) Certificate(id string) (model.Certificate, bool) {
	cert, ok := c.byID[id]
	return cert, ok
}

// List returns the certificates ordered by id.
func (c *Catalog) List() []model.Certificate {
	out := make([]model.Certificate, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}
