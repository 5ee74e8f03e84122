package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(1).PaddingRight(1)

	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5E5E"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#32CD32"))

	tableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	tableCell = lipgloss.NewStyle().
			Padding(0, 1)

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
)

// renderTable lays rows out in fixed-width columns. The third column is the
// printer state and is coloured.
func renderTable(title string, headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	headerCells := make([]string, len(headers))
	for i, h := range headers {
		headerCells[i] = tableHeader.Width(widths[i] + 2).Render(h)
	}
	headerRow := lipgloss.JoinHorizontal(lipgloss.Left, headerCells...)

	bodyRows := make([]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(headers))
		for j := range headers {
			var cell string
			if j < len(row) {
				cell = row[j]
			}
			style := tableCell.Width(widths[j] + 2)
			if j == 2 {
				if cell == "offline" {
					style = style.Inherit(offlineStyle)
				} else {
					style = style.Inherit(onlineStyle)
				}
			}
			cells[j] = style.Render(cell)
		}
		bodyRows[i] = lipgloss.JoinHorizontal(lipgloss.Left, cells...)
	}
	body := lipgloss.JoinVertical(lipgloss.Left, bodyRows...)

	table := tableStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		headerRow,
		body,
	))

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		table,
	)
}
