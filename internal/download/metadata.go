package download

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jakalope/newsagger-go/internal/store"
)

// pageManifest is the JSON document written alongside a page's binary
// artifacts, per spec.md §6's metadata JSON field list.
type pageManifest struct {
	ItemID           string   `json:"item_id"`
	LCCN             string   `json:"lccn"`
	Title            string   `json:"title"`
	Date             string   `json:"date"`
	Edition          int      `json:"edition"`
	Sequence         int      `json:"sequence"`
	PageURL          string   `json:"page_url"`
	DownloadDate     string   `json:"download_date"`
	Files            []string `json:"files"`
	FileTypesRequested []string `json:"file_types_requested"`
}

func writeMetadata(path string, p store.Page, files, fileTypesRequested []string, now time.Time) error {
	m := pageManifest{
		ItemID: p.ItemID, LCCN: p.LCCN, Title: p.Title, Date: p.Date,
		Edition: p.Edition, Sequence: p.Sequence, PageURL: p.PageURL,
		DownloadDate:       now.UTC().Format(time.RFC3339),
		Files:              files,
		FileTypesRequested: fileTypesRequested,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("download: marshaling metadata for %s: %w", p.ItemID, err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeOCRText(path, text string) error {
	return os.WriteFile(path, []byte(text), 0o644)
}
