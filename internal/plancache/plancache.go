// Package plancache persists bootstrapped plans to disk, keyed by
// environment, so services can start without re-running the synchronizer.
package plancache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/instpay/instpay/internal/domain/catalog"
	ierr "github.com/instpay/instpay/internal/errors"
)

// Write merges the environment's plans into the cache file, preserving
// entries for other environments.
func Write(path, env string, plans []*catalog.Plan) error {
	cache := map[string]json.RawMessage{}
	existing, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(existing, &cache); err != nil {
			return ierr.WithError(err).
				WithHintf("plan cache %q is corrupt", path).
				Mark(ierr.ErrSystem)
		}
	} else if !os.IsNotExist(err) {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	encoded, err := json.Marshal(plans)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	cache[env] = encoded

	out, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	return nil
}

// Read loads the plans cached for one environment.
func Read(path, env string) ([]*catalog.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("no plan cache found at %q, run the bootstrap command first", path).
			Mark(ierr.ErrNotFound)
	}
	cache := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("plan cache %q is corrupt", path).
			Mark(ierr.ErrSystem)
	}
	raw, ok := cache[env]
	if !ok {
		return nil, ierr.NewErrorf("no cached plans for environment %q", env).
			WithHintf("run the bootstrap command for %q first", env).
			Mark(ierr.ErrNotFound)
	}
	var plans []*catalog.Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	return plans, nil
}
