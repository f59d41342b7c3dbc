package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Burtson-Labs/bandit-sync/internal/engine"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(16)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		rt, err := setup(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer rt.close()

		if err := rt.engine.Initialize(ctx); err != nil {
			fatalf("initialization failed: %v", err)
		}

		state := rt.engine.State()
		convCount, _ := rt.store.CountConversations(ctx)
		projCount, _ := rt.store.CountProjects(ctx)

		fmt.Println(headerStyle.Render("banditsync status"))
		fmt.Printf("%s %s\n", labelStyle.Render("Status"), renderStatus(state))
		if state.LastError != "" {
			fmt.Printf("%s %s\n", labelStyle.Render("Last error"), errStyle.Render(state.LastError))
		}
		fmt.Printf("%s %s\n", labelStyle.Render("Device"), state.DeviceID)
		if state.LastSyncAt != nil {
			fmt.Printf("%s %s\n", labelStyle.Render("Last sync"), state.LastSyncAt.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("%s %s\n", labelStyle.Render("Last sync"), dimStyle.Render("never"))
		}
		fmt.Printf("%s %d conversations, %d projects\n", labelStyle.Render("Local"), convCount, projCount)
		fmt.Printf("%s %d conversations, %d projects\n", labelStyle.Render("Server"), state.ServerConversationCount, state.ServerProjectCount)

		pending := state.PendingConversationUpserts + state.PendingConversationDeletes +
			state.PendingProjectUpserts + state.PendingProjectDeletes
		fmt.Printf("%s %d\n", labelStyle.Render("Pending"), pending)

		if len(state.WarningConversations) > 0 {
			fmt.Printf("%s %s\n", labelStyle.Render("Near limit"), warnStyle.Render(strings.Join(state.WarningConversations, ", ")))
		}
		if len(state.OversizedConversations) > 0 {
			fmt.Printf("%s %s\n", labelStyle.Render("Blocked"), errStyle.Render(strings.Join(state.OversizedConversations, ", ")))
		}
	},
}

func renderStatus(state engine.State) string {
	label := string(state.Status)
	if state.SyncEnabled {
		label += " (sync on)"
	} else {
		label += " (sync off)"
	}
	switch state.Status {
	case engine.StatusIdle:
		return okStyle.Render(label)
	case engine.StatusSyncing:
		return warnStyle.Render(label)
	case engine.StatusError:
		return errStyle.Render(label)
	default:
		return dimStyle.Render(label)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
