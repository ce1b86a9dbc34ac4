package export

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/orderscout/orderscout/internal/storage"
)

// htmlPage is a standalone report: no external assets, openable from
// disk.
const htmlPage = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<title>Detected Orders</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
h1 { font-size: 1.4rem; }
p.meta { color: #666; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; vertical-align: top; }
th { background: #f5f5f5; }
tr:nth-child(even) { background: #fafafa; }
td.text { max-width: 40rem; }
span.score { font-variant-numeric: tabular-nums; }
</style>
</head>
<body>
<h1>Detected Orders</h1>
<p class="meta">Generated {{.GeneratedAt}} &middot; {{.Count}} orders</p>
<table>
<tr><th>Date</th><th>Category</th><th>Relevance</th><th>Method</th><th>Author</th><th>Text</th><th>Link</th></tr>
{{range .Orders}}<tr>
<td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
<td>{{.Category}}</td>
<td><span class="score">{{printf "%.2f" .Relevance}}</span></td>
<td>{{.DetectedBy}}</td>
<td>{{.AuthorName}}</td>
<td class="text">{{.Text}}</td>
<td>{{if .TelegramLink}}<a href="{{.TelegramLink}}">open</a>{{end}}</td>
</tr>{{end}}
</table>
</body>
</html>
`

var htmlTemplate = template.Must(template.New("orders").Parse(htmlPage))

// WriteHTML renders orders as a standalone HTML table.
func WriteHTML(w io.Writer, orders []storage.Order) error {
	data := struct {
		GeneratedAt string
		Count       int
		Orders      []storage.Order
	}{
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04 UTC"),
		Count:       len(orders),
		Orders:      orders,
	}
	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
