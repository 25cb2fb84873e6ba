package pipeline

import "repostreach/pkg/models"

// Aggregate returns a copy of table with every exposure set to the sum of
// the known follower counts of that post's reposters. Reposters missing
// from followers contribute nothing. A post without reposters gets 0.
func Aggregate(table models.PostTable, followers models.FollowerIndex) models.PostTable {
	out := make(models.PostTable, len(table))
	for i, record := range table {
		var exposure int64
		for _, id := range record.ReposterIDs {
			exposure += followers[id]
		}
		out[i] = models.PostRecord{
			PostID:        record.PostID,
			ReposterIDs:   append([]string{}, record.ReposterIDs...),
			ReposterCount: record.ReposterCount,
			Exposure:      &exposure,
		}
	}
	return out
}
