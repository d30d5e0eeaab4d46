package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spechtlabs/strato/pkg/gossip"
)

// nodeRow is one rendered line of the cluster inspector.
type nodeRow struct {
	ID         gossip.NodeID
	Generation int64
	MaxVersion int64
	Alive      bool
	Status     string
	LastSeen   time.Time
	IsLocal    bool
}

// TUI model for displaying the endpoint state table
type clusterModel struct {
	gossiper    *gossip.Gossiper
	lastRows    []nodeRow
	highlighted map[gossip.NodeID]time.Time
	width       int
	height      int
}

// Update message types
type stateUpdateMsg struct {
	rows []nodeRow
}

type tickMsg time.Time

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#626262")).
			Padding(0, 1)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	deadNodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Strikethrough(true)

	localNodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

func newClusterModel(gossiper *gossip.Gossiper) *clusterModel {
	return &clusterModel{
		gossiper:    gossiper,
		lastRows:    make([]nodeRow, 0),
		highlighted: make(map[gossip.NodeID]time.Time),
	}
}

func (m clusterModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.updateStateCmd(),
	)
}

func (m clusterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(
			tickCmd(),
			m.updateStateCmd(),
		)

	case stateUpdateMsg:
		// Check for changes and highlight updated nodes
		for _, newRow := range msg.rows {
			for _, oldRow := range m.lastRows {
				if newRow.ID == oldRow.ID {
					if newRow.MaxVersion != oldRow.MaxVersion || newRow.Status != oldRow.Status {
						m.highlighted[newRow.ID] = time.Now()
					}
					break
				}
			}
		}
		m.lastRows = msg.rows
		return m, nil
	}

	return m, nil
}

func (m clusterModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder

	// Title
	title := fmt.Sprintf("strato Cluster Inspector - Node: %s", m.gossiper.LocalID())
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")

	// Header
	header := fmt.Sprintf("%-24s %-12s %-12s %-8s %-12s %-25s",
		"ID", "Generation", "MaxVersion", "Alive", "Status", "Last Seen")
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n")

	// Separator
	sb.WriteString(strings.Repeat("-", m.width))
	sb.WriteString("\n")

	// Node data
	for _, row := range m.lastRows {
		// Check if this node should be highlighted
		isHighlighted := false
		if highlightTime, exists := m.highlighted[row.ID]; exists {
			if time.Since(highlightTime) < 3*time.Second {
				isHighlighted = true
			} else {
				delete(m.highlighted, row.ID)
			}
		}

		// Choose style based on node type and highlight status
		var style lipgloss.Style
		switch {
		case row.IsLocal:
			style = localNodeStyle
		case !row.Alive:
			style = deadNodeStyle
		case isHighlighted:
			style = highlightStyle
		default:
			style = normalStyle
		}

		// Format the node data
		nodeLine := fmt.Sprintf("%-24s %-12d %-12d %-8t %-12s %-25s",
			truncateString(string(row.ID), 24),
			row.Generation,
			row.MaxVersion,
			row.Alive,
			truncateString(row.Status, 12),
			row.LastSeen.Format("2006-01-02 15:04:05"))

		sb.WriteString(style.Render(nodeLine))
		sb.WriteString("\n")
	}

	// Help text
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Press 'q' or Ctrl+C to quit"))
	sb.WriteString("\n")

	return sb.String()
}

// Helper functions
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m clusterModel) updateStateCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		snap := m.gossiper.Snapshot(ctx)
		rows := make([]nodeRow, 0, len(snap))
		for id, state := range snap {
			status := ""
			if entry, ok := state.Entry(gossip.StateKeyStatus); ok {
				status = string(entry.Value)
			}

			rows = append(rows, nodeRow{
				ID:         id,
				Generation: state.Heartbeat().Generation,
				MaxVersion: state.MaxVersion(),
				Alive:      state.Alive(),
				Status:     status,
				LastSeen:   state.LastSeen(),
				IsLocal:    id == m.gossiper.LocalID(),
			})
		}

		sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
		return stateUpdateMsg{rows: rows}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
