package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// StackColors defines the color palette for stack visualization
var StackColors = [][]int{
	{76, 203, 241},  // Light blue
	{77, 202, 125},  // Green
	{245, 200, 0},   // Yellow
	{248, 144, 72},  // Orange
	{244, 98, 81},   // Red
	{235, 130, 188}, // Pink
	{159, 131, 228}, // Purple
	{80, 132, 243},  // Blue
}

var (
	// BranchStyle renders branch names
	BranchStyle = lipgloss.NewStyle().Bold(true)

	// CommitStyle renders abbreviated commit ids
	CommitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	// IntegratedStyle marks commits already reachable from the target
	IntegratedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))

	// ConflictStyle marks conflict-annotated commits
	ConflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)

	// DimStyle renders secondary information
	DimStyle = lipgloss.NewStyle().Faint(true)
)

// ColorsEnabled reports whether styled output should be produced
func ColorsEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Styled applies the style when colors are enabled, otherwise returns the text unchanged
func Styled(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}
