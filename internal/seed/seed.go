// Package seed loads a tenant's hand-maintained masters (company profile,
// expense categories and export profiles) from a YAML file.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/masters"
	"github.com/keihi-platform/api/internal/store"
)

type Company struct {
	Name string `yaml:"name"`
}

type File struct {
	Company        *Company                `yaml:"company,omitempty"`
	Categories     []masters.Category      `yaml:"categories"`
	ExportProfiles []masters.ExportProfile `yaml:"exportProfiles"`
}

// Result counts the documents written by Apply.
type Result struct {
	Categories     int
	ExportProfiles int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document. Unknown keys are rejected so that typos do
// not silently drop fields.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, c := range f.Categories {
		switch {
		case c.ID == "":
			errs = append(errs, fmt.Errorf("categories[%d]: id is required", i))
		case seen[c.ID]:
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate id %q", i, c.ID))
		}
		seen[c.ID] = true
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
		}
	}
	for i, p := range f.ExportProfiles {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("exportProfiles[%d]: id is required", i))
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("exportProfiles[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Apply writes the seed into tenantID in one batch. Categories and export
// profiles are replaced by ID; the company document is merged.
func Apply(ctx context.Context, st store.Store, paths store.Paths, auditLogger *audit.Logger, tenantID, actorID string, f *File) (Result, error) {
	var res Result
	batch := st.Batch()

	if f.Company != nil {
		batch.Merge(paths.Tenant(tenantID), map[string]any{
			"name":      f.Company.Name,
			"isActive":  true,
			"updatedAt": time.Now().UTC(),
		})
	}
	for _, c := range f.Categories {
		c.IsActive = true
		batch.Set(paths.Doc(tenantID, store.CollCategories, c.ID), masters.OmitAbsentFields(c))
		res.Categories++
	}
	for _, p := range f.ExportProfiles {
		if p.MappingJSON == nil {
			p.MappingJSON = map[string]any{}
		}
		if p.DateFormat == "" {
			p.DateFormat = "yyyyMMdd"
		}
		batch.Set(paths.Doc(tenantID, store.CollExportProfiles, p.ID), masters.OmitAbsentFields(p))
		res.ExportProfiles++
	}

	auditLogger.Stage(batch, audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     "seed_applied",
		TargetPath: paths.Tenant(tenantID),
		After: map[string]any{
			"categories":     res.Categories,
			"exportProfiles": res.ExportProfiles,
		},
	})

	if err := batch.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit seed: %w", err)
	}
	return res, nil
}
