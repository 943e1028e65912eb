package feed

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/storage"
)

func TestImages(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"array passes through", []any{"u1", "u2"}, []string{"u1", "u2"}},
		{"typed array passes through", []string{"u1"}, []string{"u1"}},
		{"sparse mapping by value order", map[string]any{"0": "u1", "2": "u2"}, []string{"u1", "u2"}},
		{"integer keys sort numerically", map[string]any{"10": "c", "2": "b", "1": "a"}, []string{"a", "b", "c"}},
		{"integer keys before string keys", map[string]any{"x": "z", "b": "y", "3": "w"}, []string{"w", "y", "z"}},
		{"leading zero is a string key", map[string]any{"01": "s", "5": "n"}, []string{"n", "s"}},
		{"single string wraps", "http://x/1.png", []string{"http://x/1.png"}},
		{"nil is empty", nil, []string{}},
		{"number is empty", 42.0, []string{}},
		{"bool is empty", true, []string{}},
		{"empty array", []any{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Images(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Images() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_StringImage(t *testing.T) {
	snap := &storage.Snapshot{Entries: []storage.Entry{
		{Key: "a", Value: map[string]any{"name": "Chair", "images": "http://x/1.png"}},
	}}

	got := Normalize(snap)
	want := []models.Listing{{ID: "a", Name: "Chair", Images: []string{"http://x/1.png"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_SparseImages(t *testing.T) {
	snap := &storage.Snapshot{Entries: []storage.Entry{
		{Key: "a", Value: map[string]any{"name": "Table", "images": map[string]any{"0": "u1", "2": "u2"}}},
	}}

	got := Normalize(snap)
	if len(got) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(got))
	}
	if diff := cmp.Diff([]string{"u1", "u2"}, got[0].Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_KeepsStoreOrderAndIncompleteRecords(t *testing.T) {
	snap := &storage.Snapshot{Entries: []storage.Entry{
		{Key: "z", Value: map[string]any{"description": "no name"}},
		{Key: "a", Value: map[string]any{}},
		{Key: "m", Value: "not a record"},
	}}

	got := Normalize(snap)
	want := []models.Listing{
		{ID: "z", Description: "no name", Images: []string{}},
		{ID: "a", Images: []string{}},
		{ID: "m", Images: []string{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_AbsentSnapshot(t *testing.T) {
	for name, snap := range map[string]*storage.Snapshot{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			got := Normalize(snap)
			if got == nil || len(got) != 0 {
				t.Errorf("Normalize() = %#v, want empty non-nil slice", got)
			}
		})
	}
}

func TestNormalize_IgnoresNonStringTypes(t *testing.T) {
	snap := &storage.Snapshot{Entries: []storage.Entry{
		{Key: "a", Value: map[string]any{"name": 12, "description": false, "images": []any{"u1", 3, "u2"}}},
	}}

	got := Normalize(snap)
	want := []models.Listing{{ID: "a", Images: []string{"u1", "u2"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}
