package pagination

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Pagination is the page/limit pair accepted by admin list endpoints.
type Pagination struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=10"`
}

// PageInfo mirrors the list response shape of the web client.
type PageInfo struct {
	Count       int64 `json:"count"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
}

// Normalize clamps page to at least 1 and limit to [1, MaxLimit].
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

func BuildPageInfo(p Pagination, count int64) PageInfo {
	n := p.Normalize()
	totalPages := int((count + int64(n.Limit) - 1) / int64(n.Limit))
	return PageInfo{
		Count:       count,
		TotalPages:  totalPages,
		CurrentPage: n.Page,
	}
}
