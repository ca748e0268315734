package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// PrintLists prints list names with their sizes.
func PrintLists(w io.Writer, lists []session.ListInfo) {
	table := newTable(w, []string{"LIST", "CANDIDATES"})
	for _, l := range lists {
		table.Append([]string{l.Name, strconv.Itoa(l.Count)})
	}
	table.Render()
}

// PrintList prints the candidates of one list in order.
func PrintList(w io.Writer, cat *catalog.Catalog, name string, showMeta bool) error {
	cands, err := cat.List(name)
	if err != nil {
		return err
	}
	header := []string{"#", "ID", "LABEL"}
	if showMeta {
		header = append(header, "META")
	}
	table := newTable(w, header)
	for i, c := range cands {
		row := []string{strconv.Itoa(i + 1), c.ID, c.Label}
		if showMeta {
			row = append(row, formatMeta(c.Meta))
		}
		table.Append(row)
	}
	table.Render()

	if rule := cat.Fill(name); len(rule) > 0 {
		fmt.Fprintf(w, "\nfill rule for %s:\n", name)
		fill := newTable(w, []string{"META", "FIELD", "ONLY EMPTY"})
		for _, f := range rule {
			fill.Append([]string{f.Meta, f.Field, strconv.FormatBool(f.OnlyEmpty)})
		}
		fill.Render()
	}
	return nil
}
