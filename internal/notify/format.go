package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

var titles = map[string]string{
	domain.EventOpportunityDetected: "Opportunity detected",
	domain.EventPositionOpened:      "Hedge opened",
	domain.EventPositionPartial:     "Hedge partially filled",
	domain.EventPositionRedeemed:    "Position redeemed",
	domain.EventPositionExpired:     "Position expired",
	domain.EventHedgeFailed:         "Hedge failed",
}

// Format renders an event as a title and a plain-text body with one
// "key: value" line per detail field, sorted by key.
func Format(ev domain.Event) (title, body string) {
	title, ok := titles[ev.Name]
	if !ok {
		title = ev.Name
	}

	var b strings.Builder
	if ev.MarketID != "" {
		fmt.Fprintf(&b, "market: %s\n", ev.MarketID)
	}
	keys := make([]string, 0, len(ev.Detail))
	for k := range ev.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, formatValue(ev.Detail[k]))
	}
	if !ev.At.IsZero() {
		fmt.Fprintf(&b, "at: %s", ev.At.UTC().Format("2006-01-02 15:04:05Z"))
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", x)
	case *float64:
		if x == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f", *x)
	default:
		return fmt.Sprint(x)
	}
}
