package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/orderscout/orderscout/internal/storage"
)

// csvHeader is the stable column order consumers of the export rely on.
var csvHeader = []string{
	"id", "created_at", "chat_id", "author_name", "category",
	"relevance_score", "detected_by", "text", "telegram_link",
}

// WriteCSV renders orders to w, header first.
func WriteCSV(w io.Writer, orders []storage.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range orders {
		row := []string{
			strconv.FormatInt(o.ID, 10),
			o.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(o.ChatID, 10),
			o.AuthorName,
			string(o.Category),
			strconv.FormatFloat(o.Relevance, 'f', 2, 64),
			string(o.DetectedBy),
			o.Text,
			o.TelegramLink,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
