package models

import "time"

// Listing is the canonical shape of a product record once it has been
// normalised out of a store snapshot.
type Listing struct {
	ID          string   `firestore:"-" json:"id"` // document key, not stored as a field
	Name        string   `firestore:"name" json:"name"`
	Description string   `firestore:"description" json:"description"`
	Images      []string `firestore:"images" json:"images"`
}

// NewListing is the add-product form. Name is not required: the app never
// enforced it and existing records rely on that.
type NewListing struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty" validate:"omitempty,uri"`
}

// Bid is the document stored at products/{id}/bids/{uid}.
type Bid struct {
	Selection []string  `firestore:"selection" validate:"dive,required"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ListingView is a listing decorated with the session's overlay flags.
type ListingView struct {
	Listing
	Saved     bool `json:"saved"`
	Published bool `json:"published"`
	Selected  bool `json:"selected"`
}
