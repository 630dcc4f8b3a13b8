package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/groblegark/tempo/internal/client"
	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printControl(out *client.ControlResponse) {
	if jsonOutput {
		printJSON(out)
		return
	}
	fmt.Println(out.Message)
	if out.Status != nil {
		fmt.Printf("State: %s\n", ui.RenderState(out.Status.State))
	}
}

func printSessions(sessions []*model.Session) {
	if len(sessions) == 0 {
		fmt.Println(ui.RenderMuted("no sessions recorded"))
		return
	}
	for _, s := range sessions {
		end := ui.RenderState(model.StateTracking)
		if s.EndedAt != nil {
			end = s.EndedAt.Local().Format("15:04")
		}
		fmt.Printf("%s  %s  %s  %s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			end,
			ui.FormatDuration(int64(s.Duration(time.Now()).Seconds())))
	}
}

func printStatus(st *client.StatusResponse) {
	fmt.Printf("State:    %s\n", ui.RenderState(st.State))
	if st.Session != nil {
		fmt.Printf("Session:  %s\n", st.Session.ID)
		fmt.Printf("Tracked:  %s\n", ui.FormatDuration(st.SessionSecs))
		fmt.Printf("Breaks:   %s\n", ui.FormatDuration(st.BreakSecs))
	}
	if st.Break != nil && st.Break.EndedAt == nil {
		fmt.Printf("On break: %s\n", ui.RenderAccent(st.Break.ID))
	}
	if st.IssueOverride != "" {
		fmt.Printf("Pinned:   %s\n", ui.RenderAccent(st.IssueOverride))
	}
	if st.Stats != nil {
		fmt.Printf("Units:    %d total, %d billable, %d micro, %d exported\n",
			st.Stats.TotalUnits, st.Stats.BillableUnits, st.Stats.MicroUnits, st.Stats.ExportedUnits)
	}
	fmt.Println(ui.RenderMuted("daemon " + st.Version))
}
