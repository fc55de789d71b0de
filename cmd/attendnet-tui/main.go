// Command attendnet-tui is an interactive browser for exported network
// snapshots. It reads the JSON document written by a pipeline run and lets
// an analyst walk communities, drill into their members and inspect the
// highest-risk patients without leaving the terminal.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dd0wney/attendnet/pkg/export"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF")).
			MarginLeft(2).
			MarginTop(1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#005F87")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5F8787")).
			Padding(1, 2).
			MarginRight(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)

	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF5F"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAF5F"))
)

func tierStyle(tier string) lipgloss.Style {
	switch tier {
	case "High":
		return highStyle
	case "Medium":
		return mediumStyle
	default:
		return lowStyle
	}
}

type view int

const (
	overviewView view = iota
	communitiesView
	nodesView
	riskView
)

const viewCount = 4

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Enter    key.Binding
	Esc      key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open community"),
	),
	Esc: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear filter"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down/j", "down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Enter, k.Esc, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Enter, k.Esc},
		{k.Up, k.Down, k.Quit},
	}
}

type model struct {
	doc  *export.Document
	path string

	currentView    view
	communityTable table.Model
	nodeTable      table.Model
	help           help.Model
	keys           keyMap
	width          int
	height         int

	filterOn bool
	filterID int
}

func initialModel(path string, doc *export.Document) model {
	communityColumns := []table.Column{
		{Title: "ID", Width: 5},
		{Title: "Patients", Width: 9},
		{Title: "Sites", Width: 6},
		{Title: "Avg DNA", Width: 8},
		{Title: "Score", Width: 7},
		{Title: "Risk", Width: 7},
		{Title: "Dominant Age", Width: 13},
	}
	communityTable := table.New(
		table.WithColumns(communityColumns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	communityTable.SetRows(communityRows(doc))

	nodeColumns := []table.Column{
		{Title: "ID", Width: 24},
		{Title: "Type", Width: 8},
		{Title: "Comm", Width: 5},
		{Title: "Tier", Width: 7},
		{Title: "DNA Rate", Width: 9},
		{Title: "Appts", Width: 6},
		{Title: "DNA", Width: 5},
	}
	nodeTable := table.New(
		table.WithColumns(nodeColumns),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	nodeTable.SetRows(nodeRows(doc, false, 0))

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#5F8787")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#005F87")).
		Bold(false)
	communityTable.SetStyles(styles)
	nodeTable.SetStyles(styles)

	return model{
		doc:            doc,
		path:           path,
		currentView:    overviewView,
		communityTable: communityTable,
		nodeTable:      nodeTable,
		help:           help.New(),
		keys:           keys,
	}
}

// communityRows lists communities by descending risk score so the ones
// worth outreach attention sit at the top.
func communityRows(doc *export.Document) []table.Row {
	communities := make([]export.CommunityRecord, len(doc.Communities))
	copy(communities, doc.Communities)
	sort.Slice(communities, func(i, j int) bool {
		if communities[i].RiskScore != communities[j].RiskScore {
			return communities[i].RiskScore > communities[j].RiskScore
		}
		return communities[i].ID < communities[j].ID
	})

	rows := make([]table.Row, 0, len(communities))
	for _, c := range communities {
		id := strconv.Itoa(c.ID)
		if c.Residual {
			id += "*"
		}
		rows = append(rows, table.Row{
			id,
			strconv.Itoa(c.Patients),
			strconv.Itoa(c.Sites),
			fmt.Sprintf("%.3f", c.AvgDNARate),
			fmt.Sprintf("%.3f", c.RiskScore),
			c.RiskLevel,
			c.DominantAge,
		})
	}
	return rows
}

func nodeRows(doc *export.Document, filterOn bool, filterID int) []table.Row {
	nodes := make([]export.NodeRecord, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if filterOn && n.Community != filterID {
			continue
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].DNARate != nodes[j].DNARate {
			return nodes[i].DNARate > nodes[j].DNARate
		}
		return nodes[i].ID < nodes[j].ID
	})

	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, table.Row{
			n.ID,
			n.Type,
			strconv.Itoa(n.Community),
			n.RiskCategory,
			fmt.Sprintf("%.3f", n.DNARate),
			strconv.Itoa(n.Appointments),
			strconv.Itoa(n.DNACount),
		})
	}
	return rows
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % viewCount

		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.currentView = viewCount - 1
			} else {
				m.currentView--
			}

		case key.Matches(msg, m.keys.Enter):
			if m.currentView == communitiesView {
				m.openSelectedCommunity()
			}

		case key.Matches(msg, m.keys.Esc):
			if m.filterOn {
				m.filterOn = false
				m.nodeTable.SetRows(nodeRows(m.doc, false, 0))
			}
		}
	}

	switch m.currentView {
	case communitiesView:
		m.communityTable, cmd = m.communityTable.Update(msg)
		cmds = append(cmds, cmd)
	case nodesView:
		m.nodeTable, cmd = m.nodeTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) openSelectedCommunity() {
	row := m.communityTable.SelectedRow()
	if len(row) == 0 {
		return
	}
	id, err := strconv.Atoi(strings.TrimSuffix(row[0], "*"))
	if err != nil {
		return
	}
	m.filterOn = true
	m.filterID = id
	m.nodeTable.SetRows(nodeRows(m.doc, true, id))
	m.currentView = nodesView
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading snapshot..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("AttendNet Snapshot Browser"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case overviewView:
		s.WriteString(m.renderOverview())
	case communitiesView:
		s.WriteString(m.renderCommunities())
	case nodesView:
		s.WriteString(m.renderNodes())
	case riskView:
		s.WriteString(m.renderTopRisk())
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Overview", "Communities", "Nodes", "Top Risk"}
	rendered := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		if view(i) == m.currentView {
			rendered = append(rendered, activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m model) renderOverview() string {
	meta := m.doc.Metadata
	summary := m.doc.Summary

	degraded := ""
	if meta.Degraded {
		degraded = "\nDegraded:    YES (single-community fallback)"
	}

	snapshotBox := statsBoxStyle.Render(fmt.Sprintf(`Snapshot
--------
File:        %s
Run:         %s
Generated:   %s
Algorithm:   %s%s

Nodes:       %d
Edges:       %d
Communities: %d (%d high / %d medium / %d low)`,
		m.path,
		meta.RunID,
		meta.GeneratedAt.Format("2006-01-02 15:04:05"),
		meta.Algorithm,
		degraded,
		meta.TotalNodes,
		meta.TotalEdges,
		meta.TotalCommunities,
		meta.HighRiskCommunities,
		meta.MediumRiskCommunities,
		meta.LowRiskCommunities,
	))

	riskBox := statsBoxStyle.Render(fmt.Sprintf(`Risk Profile
------------
Patients:        %d
Sites:           %d
Overall DNA:     %.3f
High-risk:       %d (%.1f%%)
Cut points:      high >= %.4f, low <= %.4f

Patients by tier
  %s %d   %s %d   %s %d

Age groups
%s`,
		summary.TotalPatients,
		summary.TotalSites,
		summary.OverallDNARate,
		summary.HighRiskPatients,
		summary.HighRiskPatientShare*100,
		meta.Thresholds.High,
		meta.Thresholds.Low,
		highStyle.Render("High"), summary.RiskDistribution["High"],
		mediumStyle.Render("Medium"), summary.RiskDistribution["Medium"],
		lowStyle.Render("Low"), summary.RiskDistribution["Low"],
		formatAgeGroups(summary.AgeGroups),
	))

	return contentStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, snapshotBox, riskBox))
}

func formatAgeGroups(groups map[string]int) string {
	order := []string{"Child", "Young Adult", "Adult", "Senior", "Unknown"}
	var s strings.Builder
	for _, band := range order {
		if count, ok := groups[band]; ok {
			s.WriteString(fmt.Sprintf("  %-12s %d\n", band, count))
		}
	}
	return strings.TrimRight(s.String(), "\n")
}

func (m model) renderCommunities() string {
	var s strings.Builder
	s.WriteString(m.communityTable.View())
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Sorted by risk score. '*' marks the residual community. Enter opens members."))
	return contentStyle.Render(s.String())
}

func (m model) renderNodes() string {
	var s strings.Builder
	if m.filterOn {
		s.WriteString(helpStyle.Render(fmt.Sprintf("Community %d members. Esc shows all nodes.", m.filterID)))
		s.WriteString("\n\n")
	}
	s.WriteString(m.nodeTable.View())
	return contentStyle.Render(s.String())
}

// renderTopRisk lists the highest-risk patients with a rate bar, the
// fastest read of who outreach should call first.
func (m model) renderTopRisk() string {
	patients := make([]export.NodeRecord, 0, len(m.doc.Nodes))
	for _, n := range m.doc.Nodes {
		if n.Type == "patient" {
			patients = append(patients, n)
		}
	}
	sort.Slice(patients, func(i, j int) bool {
		if patients[i].DNARate != patients[j].DNARate {
			return patients[i].DNARate > patients[j].DNARate
		}
		return patients[i].ID < patients[j].ID
	})
	if len(patients) > 15 {
		patients = patients[:15]
	}

	var s strings.Builder
	if len(patients) == 0 {
		s.WriteString(helpStyle.Render("No patients in this snapshot."))
		return contentStyle.Render(s.String())
	}

	for i, p := range patients {
		bar := strings.Repeat("#", int(p.DNARate*40))
		tier := tierStyle(p.RiskCategory).Render(fmt.Sprintf("%-6s", p.RiskCategory))
		s.WriteString(fmt.Sprintf("%2d. %-24s %s %.3f %s\n", i+1, clip(p.ID, 24), tier, p.DNARate, bar))
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Smoothed DNA rate, top 15 patients."))
	return contentStyle.Render(s.String())
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func main() {
	path := "network_data.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	doc, err := export.ReadDocument(path)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}

	p := tea.NewProgram(initialModel(path, doc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
