package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jakalope/newsagger-go/internal/discovery"
	"github.com/jakalope/newsagger-go/internal/store"
)

// issueDir computes the `<root>/<lccn>/<YYYY>/<MM>/` directory for a page,
// per spec.md §4.5 step 2, and ensures it exists.
func issueDir(root string, p store.Page) (string, error) {
	year, month := "0000", "00"
	if len(p.Date) >= 7 {
		year, month = p.Date[0:4], p.Date[5:7]
	}
	dir := filepath.Join(root, discovery.SanitizeForFilesystem(p.LCCN), year, month)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("download: creating directory %s: %w", dir, err)
	}
	return dir, nil
}

// itemFilename builds the base filename stem for a page's on-disk
// artifacts by sanitizing its item_id, per spec.md §6's filesystem
// layout: "<download_root>/<lccn>/<YYYY>/<MM>/<item_id>.{pdf,jp2}".
func itemFilename(p store.Page) string {
	return discovery.SanitizeForFilesystem(strings.Trim(p.ItemID, "/"))
}

func pdfPath(dir string, p store.Page) string      { return filepath.Join(dir, itemFilename(p)+".pdf") }
func jp2Path(dir string, p store.Page) string       { return filepath.Join(dir, itemFilename(p)+".jp2") }
func ocrTextPath(dir string, p store.Page) string   { return filepath.Join(dir, itemFilename(p)+"_ocr.txt") }
func metadataPath(dir string, p store.Page) string  { return filepath.Join(dir, itemFilename(p)+"_metadata.json") }

// fileIsPresent reports whether path exists and is non-empty, the
// skip-if-present idempotence check of spec.md §4.5 step 4.
func fileIsPresent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
