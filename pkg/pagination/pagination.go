package pagination

const (
	// DefaultPageSize is the standard page size when one is not provided.
	DefaultPageSize = 10
	// MaxPageSize caps how many rows any listing can request.
	MaxPageSize = 100
)

// Params holds page-number pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
}

// Normalize clamps the page to >= 1 and the page size to [1, MaxPageSize].
func (p Params) Normalize() Params {
	page := p.Page
	if page < 1 {
		page = 1
	}
	size := p.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Params{Page: page, PageSize: size}
}

// Offset returns the number of rows to skip for the normalized page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Limit returns the normalized page size.
func (p Params) Limit() int {
	return p.Normalize().PageSize
}
