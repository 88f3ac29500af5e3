package domain

// StatusCounts tallies the publications of one content item by status.
type StatusCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Publishing int `json:"publishing"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
	Retrying   int `json:"retrying"`
}

func CountStatuses(publications []Publication) StatusCounts {
	var counts StatusCounts
	for i := range publications {
		counts.Total++
		switch publications[i].Status {
		case StatusPending:
			counts.Pending++
		case StatusPublishing:
			counts.Publishing++
		case StatusPublished:
			counts.Published++
		case StatusFailed:
			counts.Failed++
		case StatusRetrying:
			counts.Retrying++
		}
	}
	return counts
}

// ContentStatus derives the content-level status. It is always recomputed from
// the full set of publications.
func (c StatusCounts) ContentStatus() ContentStatus {
	switch {
	case c.Total == 0:
		return ContentDraft
	case c.Publishing > 0:
		return ContentPublishing
	case c.Published == c.Total:
		return ContentPublished
	case c.Published == 0 && c.Pending+c.Retrying > 0:
		return ContentScheduled
	case c.Published > 0:
		return ContentPartial
	default:
		return ContentFailed
	}
}
