package questlist

import "github.com/AccelByte/extend-questboard-common/pkg/domain"

// DefaultPageSize is used when a non-positive page size is requested.
const DefaultPageSize = 20

// SearchResult is one page of a quest collection.
type SearchResult struct {
	Quests   []domain.Quest `json:"quests"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	HasMore  bool           `json:"has_more"`
}

// Page slices a 1-based page out of quests. Pages past the end are empty.
func Page(quests []domain.Quest, page, pageSize int) SearchResult {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total := len(quests)
	// Compare by division so huge page numbers cannot overflow.
	start := total
	if page-1 <= total/pageSize {
		start = min((page-1)*pageSize, total)
	}
	end := total
	if pageSize < total-start {
		end = start + pageSize
	}

	return SearchResult{
		Quests:   append([]domain.Quest{}, quests[start:end]...),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  end < total,
	}
}
