package model

import "time"

// Genre is one of the fixed categories a recommendation can be filed under.
type Genre string

// Genres is the allowed genre set, in display order.
var Genres = []Genre{
	"Action",
	"Adventure",
	"Comedy",
	"Drama",
	"Horror",
	"Romance",
	"Documentary",
	"Sports",
	"Biopic",
}

// GenreFilterAll is the listAll sentinel meaning "no genre filter".
const GenreFilterAll = "all"

// Recommendation is a user-submitted pick.
//
// AuthorID holds the creator's external identity and is never changed after
// insert. IsStaffPick is only written by the staff-pick toggle.
type Recommendation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Genre       Genre     `json:"genre"`
	Link        string    `json:"link"`
	Blurb       string    `json:"blurb"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	IsStaffPick bool      `json:"isStaffPick"`
	ImageRef    string    `json:"imageRef,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublicRecommendation is the unauthenticated projection. It has no author
// identity field at all, so it cannot be leaked by a serializer.
type PublicRecommendation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Genre       Genre     `json:"genre"`
	Link        string    `json:"link"`
	Blurb       string    `json:"blurb"`
	AuthorName  string    `json:"authorName"`
	IsStaffPick bool      `json:"isStaffPick"`
	ImageRef    string    `json:"imageRef,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Public returns the projection of r without AuthorID.
func (r *Recommendation) Public() PublicRecommendation {
	return PublicRecommendation{
		ID:          r.ID,
		Title:       r.Title,
		Genre:       r.Genre,
		Link:        r.Link,
		Blurb:       r.Blurb,
		AuthorName:  r.AuthorName,
		IsStaffPick: r.IsStaffPick,
		ImageRef:    r.ImageRef,
		CreatedAt:   r.CreatedAt,
	}
}

// RecommendationFields are the mutable content fields accepted from callers
// on create and update.
type RecommendationFields struct {
	Title    string
	Genre    string
	Link     string
	Blurb    string
	ImageRef string
}
