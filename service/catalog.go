package service

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Shri1927/freelance-escrow/backend/model"
	"gopkg.in/yaml.v3"
)

// AgreementCatalog is the read-only registry of legal-text templates.
// Loaded once at process start; never mutated afterwards, so lookups need
// no locking.
type AgreementCatalog struct {
	byID  map[string]*model.Agreement
	order []*model.Agreement
}

type catalogFile struct {
	Agreements []model.Agreement `yaml:"agreements"`
}

// LoadAgreementCatalog reads the template file and validates it
func LoadAgreementCatalog(path string) (*AgreementCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agreement catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse agreement catalog: %w", err)
	}
	if len(file.Agreements) == 0 {
		return nil, fmt.Errorf("agreement catalog %s contains no agreements", path)
	}

	catalog := &AgreementCatalog{byID: make(map[string]*model.Agreement)}
	for i := range file.Agreements {
		a := file.Agreements[i]
		if a.ID == "" || a.Title == "" || a.Text == "" {
			return nil, fmt.Errorf("agreement #%d is missing id, title or text", i+1)
		}
		if _, exists := catalog.byID[a.ID]; exists {
			return nil, fmt.Errorf("duplicate agreement id %q", a.ID)
		}
		catalog.byID[a.ID] = &a
		catalog.order = append(catalog.order, &a)
	}

	slog.Info("agreement catalog loaded", "path", path, "agreements", len(catalog.order))
	return catalog, nil
}

// Get returns the template by id
func (c *AgreementCatalog) Get(id string) (*model.Agreement, error) {
	agreement, ok := c.byID[id]
	if !ok {
		return nil, newError(KindNotFound, "agreement.get", "no such agreement: "+id)
	}
	cp := *agreement
	return &cp, nil
}

// All returns every template in file order
func (c *AgreementCatalog) All() []*model.Agreement {
	result := make([]*model.Agreement, 0, len(c.order))
	for _, a := range c.order {
		cp := *a
		result = append(result, &cp)
	}
	return result
}
