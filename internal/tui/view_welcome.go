package tui

import "github.com/charmbracelet/lipgloss"

const logo = `
██╗███╗   ██╗████████╗ █████╗ ██╗  ██╗███████╗
██║████╗  ██║╚══██╔══╝██╔══██╗██║ ██╔╝██╔════╝
██║██╔██╗ ██║   ██║   ███████║█████╔╝ █████╗
██║██║╚██╗██║   ██║   ██╔══██║██╔═██╗ ██╔══╝
██║██║ ╚████║   ██║   ██║  ██║██║  ██╗███████╗
╚═╝╚═╝  ╚═══╝   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝
`

func (a *App) renderWelcome() string {
	logoRendered := styleLogo.Render(logo)
	subtitle := styleSubtitle.Render("Inspection project intake")
	instructions := styleSubtitle.Render("\nGive me the path to your problem statement PDF,\nor paste a short description of the problem")

	inputBox := styleBox.
		Width(a.boxWidth()).
		BorderForeground(colorSecondary).
		Render(a.state.input.View())

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		logoRendered,
		subtitle,
		instructions,
		"",
		inputBox,
	)

	mainArea := lipgloss.Place(
		a.width,
		a.height-2,
		lipgloss.Center,
		lipgloss.Center,
		content,
	)

	statusBar := styleStatusBar.Render("[Enter] Start  /help  [Esc] Quit")
	return lipgloss.JoinVertical(lipgloss.Left, mainArea, a.centered(statusBar))
}
