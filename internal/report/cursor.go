package report

// Cursor is the vertical page-break state machine shared by every section.
// Advance reserves room for a row and starts a new page first when the row
// does not fit; the page callback redraws whatever repeats on every page.
type Cursor struct {
	top, bottom float64
	y           float64
	pages       int
	onNewPage   func(page int)
}

func NewCursor(top, bottom float64, onNewPage func(page int)) *Cursor {
	return &Cursor{top: top, bottom: bottom, y: top, onNewPage: onNewPage}
}

func (c *Cursor) Y() float64 { return c.y }

func (c *Cursor) Pages() int { return c.pages }

func (c *Cursor) Remaining() float64 { return c.bottom - c.y }

// NewPage starts a page and runs the page callback, which may itself advance.
func (c *Cursor) NewPage() {
	c.pages++
	c.y = c.top
	if c.onNewPage != nil {
		c.onNewPage(c.pages)
	}
}

// Advance returns the y at which a row of height h starts and whether a page
// break happened before it. A row taller than a whole page is still placed.
func (c *Cursor) Advance(h float64) (y float64, newPage bool) {
	if c.pages == 0 || h > c.Remaining()+1e-9 {
		c.NewPage()
		newPage = true
	}
	y = c.y
	c.y += h
	return y, newPage
}

// Reserve breaks the page unless h fits, without consuming space. Sections
// use it to keep a title together with the rows below it.
func (c *Cursor) Reserve(h float64) bool {
	if c.pages == 0 || h > c.Remaining()+1e-9 {
		c.NewPage()
		return true
	}
	return false
}

// Gap adds vertical space, never past the bottom margin.
func (c *Cursor) Gap(h float64) {
	c.y = min(c.y+h, c.bottom)
}
