package runbook

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed runbooks.yaml
var catalogYAML []byte

type catalogFile struct {
	Runbooks []model.Runbook `yaml:"runbooks"`
}

// Catalog returns the built-in runbooks.
func Catalog() ([]model.Runbook, error) {
	return parse(catalogYAML)
}

func parse(data []byte) ([]model.Runbook, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse runbook catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Runbooks))
	for _, rb := range f.Runbooks {
		if rb.RunbookID == "" || rb.AlertType == "" {
			return nil, fmt.Errorf("runbook %q: id and alert_type are required", rb.Title)
		}
		if seen[rb.RunbookID] {
			return nil, fmt.Errorf("runbook %q: duplicate id", rb.RunbookID)
		}
		seen[rb.RunbookID] = true
	}
	return f.Runbooks, nil
}

// Seed upserts the built-in catalog into s. Seeding twice leaves one row per runbook.
func Seed(ctx context.Context, s store.RunbookStore) error {
	books, err := Catalog()
	if err != nil {
		return err
	}
	for i := range books {
		if err := s.UpsertRunbook(ctx, &books[i]); err != nil {
			return fmt.Errorf("seed runbook %s: %w", books[i].RunbookID, err)
		}
	}
	log.Info().Int("runbooks", len(books)).Msg("runbook catalog seeded")
	return nil
}
