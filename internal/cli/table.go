package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/Additional-Code/tally/internal/reconcile"
)

func renderStatuses(w io.Writer, results []reconcile.Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Sales Order", "Asset Type", "Model", "Warehouse", "Qty", "Material", "Status", "Details")
	for _, r := range results {
		o := r.Order
		if err := table.Append([]string{
			strconv.FormatInt(o.ID, 10),
			o.SalesOrder,
			o.AssetType,
			o.Model,
			o.Warehouse,
			strconv.Itoa(o.Quantity),
			string(o.MaterialType),
			string(r.Verdict.Status),
			r.Verdict.Details,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderGroups(w io.Writer, groups []reconcile.GroupResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Sales Order", "Asset Type", "Model", "Warehouse", "Qty", "Status", "Orders")
	for _, g := range groups {
		ids := make([]string, len(g.Results))
		for i, r := range g.Results {
			ids[i] = strconv.FormatInt(r.Order.ID, 10)
		}
		if err := table.Append([]string{
			g.Key.SalesOrder,
			g.Key.AssetType,
			g.Key.Model,
			g.Key.Warehouse,
			strconv.Itoa(g.Quantity),
			string(g.Status),
			strings.Join(ids, ","),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
