package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jakalope/newsagger-go/internal/store"
)

// masterConfig records how SplitStateStore partitioned non-terminal
// facets across N sibling worker stores, per spec.md §6's split/merge
// operator tool.
type masterConfig struct {
	CreatedAt time.Time       `json:"created_at"`
	Workers   []workerPartition `json:"workers"`
}

type workerPartition struct {
	Index    int      `json:"index"`
	DBPath   string   `json:"db_path"`
	FacetIDs []string `json:"facet_ids"`
}

var terminalFacetStatuses = map[store.FacetStatus]bool{
	store.FacetCompleted:      true,
	store.FacetSplitCompleted: true,
}

// SplitStateStore produces n sibling state stores under outDir, each
// containing a disjoint subset of the master's non-terminal facets, and
// writes master_config.json recording the partition, per spec.md §6.
func SplitStateStore(master *store.Store, outDir string, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("recovery: split count must be positive, got %d", n)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("recovery: creating %s: %w", outDir, err)
	}

	all, err := master.ListAllFacets()
	if err != nil {
		return "", err
	}
	var nonTerminal []store.SearchFacet
	for _, f := range all {
		if !terminalFacetStatuses[f.Status] {
			nonTerminal = append(nonTerminal, f)
		}
	}

	cfg := masterConfig{CreatedAt: time.Now(), Workers: make([]workerPartition, n)}

	for i := 0; i < n; i++ {
		dbPath := filepath.Join(outDir, fmt.Sprintf("worker-%d.db", i))
		ws, err := store.Open(dbPath, nil)
		if err != nil {
			return "", fmt.Errorf("recovery: opening worker store %d: %w", i, err)
		}

		var partition []store.SearchFacet
		for j, f := range nonTerminal {
			if j%n == i {
				partition = append(partition, f)
			}
		}

		ids := make([]string, 0, len(partition))
		for _, f := range partition {
			ids = append(ids, f.ID)
		}
		if err := ws.CreateFacets(partition); err != nil {
			ws.Close()
			return "", fmt.Errorf("recovery: seeding worker store %d: %w", i, err)
		}
		ws.Close()

		cfg.Workers[i] = workerPartition{Index: i, DBPath: dbPath, FacetIDs: ids}
	}

	cfgPath := filepath.Join(outDir, "master_config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return "", fmt.Errorf("recovery: writing %s: %w", cfgPath, err)
	}
	return cfgPath, nil
}

// MergeWorkerStore copies completed facets and their pages from a worker
// store back into master, INSERT OR REPLACE per spec.md §6. Pages are
// merged by item_id; every page in the worker store is merged, whichever
// facet (if any) discovered it. Nothing is merged when the worker has no
// completed facet.
func MergeWorkerStore(master, worker *store.Store) (facetsmerged, pagesMerged int, err error) {
	facets, err := worker.ListAllFacets()
	if err != nil {
		return 0, 0, err
	}

	var completed []store.SearchFacet
	for _, f := range facets {
		if f.Status == store.FacetCompleted {
			completed = append(completed, f)
		}
	}
	if len(completed) == 0 {
		return 0, 0, nil
	}

	if err := master.UpsertFacets(completed); err != nil {
		return 0, 0, fmt.Errorf("recovery: merging facets: %w", err)
	}

	var allPages []store.Page
	if err := worker.DB().Find(&allPages).Error; err != nil {
		return len(completed), 0, fmt.Errorf("recovery: reading worker pages: %w", err)
	}
	stored, err := master.UpsertPages(allPages)
	if err != nil {
		return len(completed), 0, fmt.Errorf("recovery: merging pages: %w", err)
	}
	return len(completed), stored, nil
}
