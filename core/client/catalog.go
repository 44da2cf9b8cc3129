package client

import (
	"context"
	"sort"

	"github.com/pyropy/udfs/core/model"
	"github.com/pyropy/udfs/core/protocol"
)

// List merges the list replies of every connected node into one entry
// per filename, sorted by name. A node that fails mid-reply contributes
// the records read before the failure.
func (c *Client) List(ctx context.Context) ([]*model.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := map[string]*model.CatalogEntry{}

	for _, slot := range c.Slots {
		if slot == nil || !slot.Connected() {
			continue
		}

		records, err := listNode(slot)
		if err != nil {
			c.log.Errorw("list", "node", slot.Index, "records", len(records), "error", err)
			slot.drop(err)
		}

		for _, r := range records {
			entry, ok := merged[r.Filename]
			if !ok {
				entry = model.NewCatalogEntry(r.Filename)
				merged[r.Filename] = entry
			}
			for _, idx := range r.Chunks {
				entry.Add(idx)
			}
		}
	}

	entries := make([]*model.CatalogEntry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Filename < entries[j].Filename
	})

	return entries, nil
}

func listNode(slot *Slot) ([]protocol.Record, error) {
	if err := slot.conn.WriteCommand(protocol.Command{Verb: protocol.VerbList}); err != nil {
		return nil, err
	}

	count, err := slot.conn.ReadCount()
	if err != nil {
		return nil, err
	}

	records := make([]protocol.Record, 0, min(count, 1024))
	for i := 0; i < count; i++ {
		r, err := slot.conn.ReadRecord()
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}

	return records, nil
}
