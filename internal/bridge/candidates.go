package bridge

import "chewbridge/internal/engine"

// CandidatePage is the visible slice of the candidate list.
type CandidatePage struct {
	Items       []string
	PerPage     int
	TotalPages  int
	CurrentPage int
}

// BuildCandidatePage reads the current candidate page. It returns false
// when the engine has no candidates. A page may hold fewer than PerPage
// items when the engine runs out, and may even be empty.
func BuildCandidatePage(e engine.CandidateLister) (CandidatePage, bool) {
	if e.CandidateTotal() <= 0 {
		return CandidatePage{}, false
	}

	page := CandidatePage{
		PerPage:     e.CandidatesPerPage(),
		TotalPages:  e.CandidateTotalPages(),
		CurrentPage: e.CandidateCurrentPage(),
	}
	page.Items = make([]string, 0, max(page.PerPage, 0))

	e.CandidateEnumerate()
	for i := 0; i < page.PerPage && e.CandidateHasNext(); i++ {
		page.Items = append(page.Items, e.CandidateString())
	}
	return page, true
}
