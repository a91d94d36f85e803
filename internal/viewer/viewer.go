package viewer

import "fmt"

// Zoom bounds, in percent. Zoom moves in fixed steps and saturates at the
// limits rather than wrapping.
const (
	ZoomMin     = 50
	ZoomMax     = 200
	ZoomStep    = 25
	ZoomDefault = 100
)

// Viewer tracks the current page and zoom level for one loaded document.
// The document itself is rendered by the browser's native PDF viewer through
// an embedded frame; the Viewer only decides which page anchor to point it
// at. Not safe for concurrent use; the owning controller serializes access.
type Viewer struct {
	fileURL    string
	totalPages int
	page       int
	zoom       int
}

func New(fileURL string, totalPages int) *Viewer {
	return &Viewer{
		fileURL:    fileURL,
		totalPages: totalPages,
		page:       1,
		zoom:       ZoomDefault,
	}
}

func (v *Viewer) Page() int       { return v.page }
func (v *Viewer) TotalPages() int { return v.totalPages }
func (v *Viewer) Zoom() int       { return v.zoom }

// SetPage moves to page n. Values outside [1, totalPages] are ignored; both
// toolbar input and citation clicks go through this same check.
func (v *Viewer) SetPage(n int) {
	if n >= 1 && n <= v.totalPages {
		v.page = n
	}
}

// Prev moves one page back, stopping at the first page.
func (v *Viewer) Prev() {
	if v.page > 1 {
		v.page--
	}
}

// Next moves one page forward, stopping at the last page.
func (v *Viewer) Next() {
	if v.page < v.totalPages {
		v.page++
	}
}

func (v *Viewer) ZoomIn() {
	v.zoom = min(v.zoom+ZoomStep, ZoomMax)
}

func (v *Viewer) ZoomOut() {
	v.zoom = max(v.zoom-ZoomStep, ZoomMin)
}

// Scale converts the zoom percentage to a CSS transform factor.
func (v *Viewer) Scale() float64 {
	return float64(v.zoom) / 100
}

// FrameURL builds the embedded-frame URL for the current page, relying on
// the PDF viewer's #page= fragment support.
func (v *Viewer) FrameURL(baseURL string) string {
	return fmt.Sprintf("%s%s#page=%d", baseURL, v.fileURL, v.page)
}
