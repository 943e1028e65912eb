package storage

import (
	"fmt"
	"strings"

	"github.com/pauljones0/komsu/internal/models"
)

// ProductsPath is the public listing collection.
const ProductsPath = "products"

func segment(s string) error {
	if s == "" || strings.Contains(s, "/") {
		return fmt.Errorf("invalid path segment %q", s)
	}
	return nil
}

func userPath(uid string, rest ...string) (string, error) {
	if uid == "" {
		return "", models.ErrNoSession
	}
	if err := segment(uid); err != nil {
		return "", err
	}
	parts := append([]string{"users", uid}, rest...)
	for _, p := range rest {
		if err := segment(p); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, "/"), nil
}

// UserProductsPath is the collection of listings a user created.
func UserProductsPath(uid string) (string, error) {
	return userPath(uid, "products")
}

// UserProductPath is one private listing document.
func UserProductPath(uid, listingID string) (string, error) {
	return userPath(uid, "products", listingID)
}

// UserSavedPath is the collection of listings a user saved.
func UserSavedPath(uid string) (string, error) {
	return userPath(uid, "saved")
}

// SavedItemPath is one saved listing document.
func SavedItemPath(uid, listingID string) (string, error) {
	return userPath(uid, "saved", listingID)
}

// BidPath is the bid document of one user on one public listing.
func BidPath(listingID, uid string) (string, error) {
	if uid == "" {
		return "", models.ErrNoSession
	}
	for _, s := range []string{listingID, uid} {
		if err := segment(s); err != nil {
			return "", err
		}
	}
	return ProductsPath + "/" + listingID + "/bids/" + uid, nil
}
