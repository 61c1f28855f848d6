package content

// Repo is repository metadata as served by the content service. Timestamps
// are kept as the service formats them (naive ISO 8601).
type Repo struct {
	ID          int64              `json:"id,omitempty"`
	URL         string             `json:"url"`
	FullName    string             `json:"full_name"`
	Name        string             `json:"name"`
	Owner       string             `json:"owner"`
	Description string             `json:"description,omitempty"`
	Languages   map[string]float64 `json:"languages,omitempty"`
	Stars       int                `json:"stars"`
	Forks       int                `json:"forks"`
	Topics      []string           `json:"topics,omitempty"`
	License     string             `json:"license,omitempty"`
	Archived    bool               `json:"archived"`
	StarsPerDay float64            `json:"star_velocity"`
	PushedAt    string             `json:"pushed_at,omitempty"`
}

// Summary is the generated summary attached to a repo.
type Summary struct {
	RepoID             int64    `json:"repo_id"`
	Summary            string   `json:"summary"`
	Tags               []string `json:"tags,omitempty"`
	Category           string   `json:"category,omitempty"`
	SkillLevel         string   `json:"skill_level,omitempty"`
	ProjectHealth      string   `json:"project_health,omitempty"`
	ProjectHealthScore float64  `json:"project_health_score,omitempty"`
	UseCases           []string `json:"use_cases,omitempty"`
}

// SearchResult is one item of /search. It is untrusted display data.
type SearchResult struct {
	Repo    Repo     `json:"repo"`
	Summary *Summary `json:"summary,omitempty"`
}

// Board is a curated list of repositories.
type Board struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	RepoCount   int    `json:"repo_count"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// BoardWithRepos is the /boards/{id} payload.
type BoardWithRepos struct {
	Board Board          `json:"board"`
	Repos []SearchResult `json:"repos"`
}

// Stats is the /stats payload.
type Stats struct {
	TotalRepos      int `json:"total_repos"`
	TotalBoards     int `json:"total_boards"`
	TotalCategories int `json:"total_categories"`
}
