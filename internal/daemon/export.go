package daemon

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/groblegark/tempo/internal/model"
)

// csvHeader matches the dump format downstream tooling already parses.
const csvHeader = "Timestamp,Duration (seconds),Window Title,App Name,Description,Tier,Logged to Jira\n"

// csvQuote wraps a field in double quotes, doubling embedded quotes.
func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *Server) writeDump(w http.ResponseWriter, r *http.Request, sessionID, format string) {
	units, err := s.store.GetActivities(r.Context(), sessionID, model.ActivityFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		var b strings.Builder
		b.WriteString(csvHeader)
		for _, u := range units {
			exported := "No"
			if u.Exported {
				exported = "Yes"
			}
			fmt.Fprintf(&b, "%s,%d,%s,%s,%s,%s,%s\n",
				csvQuote(u.Timestamp.Format(time.RFC3339)),
				u.DurationSec,
				csvQuote(u.WindowTitle),
				csvQuote(u.AppName),
				csvQuote(u.TextSample),
				u.Tier,
				exported)
		}
		_, _ = w.Write([]byte(b.String()))
	case "json":
		out := make([]map[string]any, 0, len(units))
		for _, u := range units {
			out = append(out, map[string]any{
				"timestamp":      u.Timestamp.Format(time.RFC3339),
				"duration_secs":  u.DurationSec,
				"window_title":   u.WindowTitle,
				"app_name":       u.AppName,
				"description":    u.TextSample,
				"tier":           u.Tier.String(),
				"logged_to_jira": u.Exported,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
