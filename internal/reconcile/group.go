package reconcile

import "github.com/Additional-Code/tally/internal/entity"

// Group is the set of orders sharing one grouping key.
type Group struct {
	Key    entity.GroupKey
	Orders []entity.Order
}

// GroupOrders partitions orders by grouping key, in first-seen order.
func GroupOrders(orders []entity.Order) []Group {
	pos := make(map[entity.GroupKey]int)
	var out []Group
	for _, o := range orders {
		key := o.Key()
		i, ok := pos[key]
		if !ok {
			i = len(out)
			pos[key] = i
			out = append(out, Group{Key: key})
		}
		out[i].Orders = append(out[i].Orders, o)
	}
	return out
}

// GroupResult rolls member verdicts up to their group. Status is the worst
// member status: Failed over Pending over Success.
type GroupResult struct {
	Key       entity.GroupKey `json:"key"`
	Status    Status          `json:"status"`
	Quantity  int             `json:"quantity"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Pending   int             `json:"pending"`
	Results   []Result        `json:"results"`
}

// ReconcileGroups groups already computed results by their order's key.
func ReconcileGroups(results []Result) []GroupResult {
	pos := make(map[entity.GroupKey]int)
	var out []GroupResult
	for _, r := range results {
		key := r.Order.Key()
		i, ok := pos[key]
		if !ok {
			i = len(out)
			pos[key] = i
			out = append(out, GroupResult{Key: key, Status: Success})
		}
		g := &out[i]
		g.Results = append(g.Results, r)
		g.Quantity += r.Order.Quantity
		switch r.Verdict.Status {
		case Success:
			g.Succeeded++
		case Failed:
			g.Failed++
		case Pending:
			g.Pending++
		}
		if r.Verdict.Status.severity() > g.Status.severity() {
			g.Status = r.Verdict.Status
		}
	}
	return out
}
