package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/skiffdb/skiff/internal/cloud/schema"
)

// SyncAll runs the schema reconciler and then one concurrent cycle per
// syncable table. Tables without an updated_at column are skipped with
// a log line. A failing table does not cancel its siblings; the
// returned error aggregates every per-table failure.
func (s *Syncer) SyncAll(ctx context.Context) ([]Result, error) {
	if err := ensureLedger(s.store); err != nil {
		return nil, err
	}

	tables := schema.SyncableTables(s.provider)
	for _, t := range s.provider.Tables() {
		if indexOf(tables, t) < 0 {
			s.logger.Printf("table %s has no %s column, skipping", t, schema.UpdatedAtColumn)
		}
	}
	if len(tables) == 0 {
		return nil, nil
	}

	s.EnsureRemoteSchema(ctx)

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, len(tables))
	for _, table := range tables {
		go func(table string) {
			res, err := s.SyncTable(ctx, table)
			ch <- outcome{res, err}
		}(table)
	}

	results := make([]Result, 0, len(tables))
	var failed []string
	for range tables {
		o := <-ch
		if o.err != nil {
			s.logger.Printf("sync failed for %s: %v", o.res.Table, o.err)
			failed = append(failed, fmt.Sprintf("%s: %v", o.res.Table, o.err))
		}
		results = append(results, o.res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Table < results[j].Table })

	if len(failed) > 0 {
		sort.Strings(failed)
		return results, fmt.Errorf("sync failed for %d table(s): %s",
			len(failed), strings.Join(failed, "; "))
	}
	return results, nil
}
