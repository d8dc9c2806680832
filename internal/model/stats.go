package model

// ImpactWeights are the multipliers of the impact score. The defaults are
// product constants carried over as configuration, not derived values.
type ImpactWeights struct {
	Submission int64 `json:"submission"`
	Rating     int64 `json:"rating"`
	Pledge     int64 `json:"pledge"`
}

// DefaultImpactWeights returns 500 per submission, 10 per rating given and
// 100 per pledge made.
func DefaultImpactWeights() ImpactWeights {
	return ImpactWeights{Submission: 500, Rating: 10, Pledge: 100}
}

// Score computes the weighted impact score.
func (w ImpactWeights) Score(submissions, ratings, pledges int64) int64 {
	return submissions*w.Submission + ratings*w.Rating + pledges*w.Pledge
}

// ActivityCounts are a user's contribution counts.
type ActivityCounts struct {
	Submissions int64 `json:"missions"      db:"submissions"`
	Ratings     int64 `json:"theoriesRated" db:"ratings_given"`
	Pledges     int64 `json:"pledgesMade"   db:"pledges_made"`
}

// Dashboard is the personal "My Space" view.
type Dashboard struct {
	User          *User          `json:"user"`
	Stats         ActivityCounts `json:"stats"`
	ImpactScore   int64          `json:"impactScore"`
	Missions      []Submission   `json:"missions"`
	SavedTheories []SavedTheory  `json:"savedTheories"`
}

// LeaderboardRow is the raw per-user aggregate read from the store.
type LeaderboardRow struct {
	UserID          string   `db:"user_id"`
	Name            string   `db:"name"`
	Username        string   `db:"username"`
	Submissions     int64    `db:"submissions"`
	Ratings         int64    `db:"ratings_given"`
	Pledges         int64    `db:"pledges_made"`
	CommunityRating *float64 `db:"community_rating"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank            int      `json:"rank"`
	UserID          string   `json:"userId"`
	Name            string   `json:"name"`
	Username        string   `json:"username"`
	ImpactScore     int64    `json:"impactScore"`
	CommunityRating *float64 `json:"communityRating"`
}
