package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PromptFunc dispatches one line of input and returns the rendered replies.
// No replies and no error means nothing matched.
type PromptFunc func(ctx context.Context, text string) ([]string, error)

// RuntimeInfo is shown in the console header.
type RuntimeInfo struct {
	Source   string
	PlanetID string
}

func RunInteractive(ctx context.Context, promptFn PromptFunc, info RuntimeInfo) error {
	model := newModel(ctx, promptFn, modeInteractive, "", info)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func RunOneShot(ctx context.Context, promptFn PromptFunc, text string, info RuntimeInfo) error {
	model := newModel(ctx, promptFn, modeOneShot, text, info)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("54")).
		Padding(1, 2)

	return style.Render("🪐 Clear skies from Planetbot")
}
