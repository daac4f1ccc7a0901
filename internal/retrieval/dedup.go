package retrieval

import "github.com/mohammad-safakhou/foresight/internal/models"

// Deduplicate drops articles whose lowercased link or lowercased title was
// already seen. The first occurrence wins, so the result is deterministic
// for a fixed input order (source-then-query). Articles missing either
// identity field are dropped outright.
func Deduplicate(articles []models.Article) []models.Article {
	seenLinks := make(map[string]struct{}, len(articles))
	seenTitles := make(map[string]struct{}, len(articles))

	out := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		link, title := a.DedupKey()
		if link == "" || title == "" {
			continue
		}
		if _, dup := seenLinks[link]; dup {
			continue
		}
		if _, dup := seenTitles[title]; dup {
			continue
		}
		seenLinks[link] = struct{}{}
		seenTitles[title] = struct{}{}
		out = append(out, a)
	}
	return out
}
