package models

// VideoSummary is the lightweight record returned by the video listing.
type VideoSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Channel string `json:"channel"`
	Image   string `json:"image"`
}

// VideoDetail is the full record for a single video, including its comments
// ordered most recent first. Timestamp is expressed in milliseconds since the
// Unix epoch. Image repeats the listing thumbnail so clients can render the
// player poster without a second lookup; it is omitted when a stored detail
// has none.
type VideoDetail struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Channel     string    `json:"channel"`
	Image       string    `json:"image,omitempty"`
	Description string    `json:"description"`
	Views       string    `json:"views"`
	Likes       string    `json:"likes"`
	Duration    string    `json:"duration"`
	Video       string    `json:"video"`
	Timestamp   int64     `json:"timestamp"`
	Comments    []Comment `json:"comments"`
}

// Comment is a viewer comment attached to a VideoDetail.
type Comment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Comment   string `json:"comment"`
	Likes     int64  `json:"likes"`
	Timestamp int64  `json:"timestamp"`
}

// Summary derives the listing record for the video.
func (v VideoDetail) Summary() VideoSummary {
	return VideoSummary{
		ID:      v.ID,
		Title:   v.Title,
		Channel: v.Channel,
		Image:   v.Image,
	}
}

// Clone returns a deep copy so callers cannot mutate shared comment slices.
// The comment slice is always non-nil on the copy.
func (v VideoDetail) Clone() VideoDetail {
	clone := v
	clone.Comments = make([]Comment, len(v.Comments))
	copy(clone.Comments, v.Comments)
	return clone
}
