package search

import (
	"testing"

	"github.com/david/car-finder/internal/models"
)

func TestFreeTextMatch(t *testing.T) {
	listing := car("Toyota", "Camry", withColor("Midnight Blue"), withBody("Sedan"), func(l *models.Listing) {
		l.Trim = "XSE"
		l.VIN = "4T1K61AK5MU123456"
		l.Year = 2021
	})

	tests := []struct {
		query string
		want  bool
	}{
		{"camry", true},
		{"TOYOTA camry", true},
		{"blue sedan", true},
		{"2021", true},
		{"xse", true},
		{"4T1K61AK5MU123456", true},
		{"toyota corolla", false},
		{"red", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := freeTextMatch(listing, tt.query); got != tt.want {
				t.Fatalf("freeTextMatch(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchesCriteriaSubstringMakeModel(t *testing.T) {
	// Substring, not equality, tolerates trim and variant naming.
	l := car("Mercedes-Benz", "C 300 4MATIC")
	if !matchesCriteria(l, FilterCriteria{Make: "mercedes"}) {
		t.Fatal("make should match case-insensitive substring")
	}
	if !matchesCriteria(l, FilterCriteria{Model: "c 300"}) {
		t.Fatal("model should match case-insensitive substring")
	}
	if matchesCriteria(l, FilterCriteria{Make: "BMW"}) {
		t.Fatal("wrong make must not match")
	}
}

func TestMatchesCriteriaIsLogicalAnd(t *testing.T) {
	l := car("Toyota", "Camry", withBody("Sedan"))
	if matchesCriteria(l, FilterCriteria{Make: "Toyota", BodyType: "SUV"}) {
		t.Fatal("all present criteria must hold")
	}
	if !matchesCriteria(l, FilterCriteria{Make: "Toyota", BodyType: "sedan", Condition: "Used"}) {
		t.Fatal("equality filters should be case-insensitive")
	}
}

func TestMatchesCriteriaPriceBandInclusive(t *testing.T) {
	l := car("Toyota", "Camry", withPrice(20000))
	lo, hi := 20000, 20000
	if !matchesCriteria(l, FilterCriteria{MinPrice: &lo, MaxPrice: &hi}) {
		t.Fatal("price band bounds are inclusive")
	}
	above := 20001
	if matchesCriteria(l, FilterCriteria{MinPrice: &above}) {
		t.Fatal("price below min must not match")
	}
}
