// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ui renders CLI output.
package ui

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/stacklok/mcpgate/pkg/gateway"
)

// RenderToolsTable renders one row per tool, in conversion order.
func RenderToolsTable(w io.Writer, tools []gateway.ToolDescriptor) error {
	if len(tools) == 0 {
		_, err := fmt.Fprintln(w, "The document describes no convertible operations.")
		return err
	}

	headers := []string{"Tool", "Method", "Path", "Description"}
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)

	for _, t := range tools {
		mode := t.Method
		if t.ReadOnly {
			mode += " (read-only)"
		}
		if err := table.Append([]string{t.Name, mode, t.PathTemplate, t.Description}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
