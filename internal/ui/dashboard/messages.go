package dashboard

import (
	"time"

	tea "charm.land/bubbletea/v2"
)

// refreshMsg triggers a re-read of the fleet store.
type refreshMsg time.Time

func refreshCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}
