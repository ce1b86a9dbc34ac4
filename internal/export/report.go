package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/orderscout/orderscout/internal/storage"
)

// WriteSummary renders a stats summary as plain text for the CLI.
func WriteSummary(w io.Writer, sum storage.StatsSummary) error {
	fmt.Fprintf(w, "Period: %s .. %s\n\n", sum.From, sum.To)
	fmt.Fprintf(w, "Messages seen:     %d\n", sum.TotalMessages)
	fmt.Fprintf(w, "Orders detected:   %d\n", sum.DetectedOrders)
	fmt.Fprintf(w, "  by pattern bank: %d\n", sum.RegexDetections)
	fmt.Fprintf(w, "  by classifier:   %d\n", sum.LLMDetections)
	fmt.Fprintf(w, "Tokens used:       %d\n", sum.LLMTokensUsed)
	fmt.Fprintf(w, "Classifier cost:   $%.4f\n", sum.LLMCost)

	if len(sum.ByCategory) == 0 {
		return nil
	}

	type catCount struct {
		name  string
		count int64
	}
	cats := make([]catCount, 0, len(sum.ByCategory))
	for c, n := range sum.ByCategory {
		cats = append(cats, catCount{string(c), n})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].count != cats[j].count {
			return cats[i].count > cats[j].count
		}
		return cats[i].name < cats[j].name
	})

	fmt.Fprintf(w, "\nBy category:\n")
	for _, c := range cats {
		fmt.Fprintf(w, "  %-10s %d\n", c.name, c.count)
	}
	return nil
}
