package tmdb

// FindResponse is the body of GET /find/{external_id}.
type FindResponse struct {
	MovieResults []MovieResult `json:"movie_results"`
	TVResults    []TVResult    `json:"tv_results"`
}

// MovieResult is a movie entry in a find response.
type MovieResult struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
}

// TVResult is a series entry in a find response.
type TVResult struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
}

// ErrorResponse represents a TMDB API error response.
type ErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// Title is the normalized result of an external id lookup.
type Title struct {
	TMDBID   int    `json:"tmdbId"`
	Name     string `json:"name"`
	Year     int    `json:"year,omitempty"`
	IsSeries bool   `json:"isSeries"`
}
