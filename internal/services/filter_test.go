package services

import (
	"reflect"
	"testing"
)

func sampleProducts() []Product {
	return []Product{
		{ID: "1", Name: "Bridal--Red Velvet--a", Category: "Bridal", ImageURL: "https://i.ibb.co/1/Red-Velvet.jpg"},
		{ID: "2", Name: "Party--green--b", Category: "Party", ImageURL: "https://i.ibb.co/2/green.jpg"},
		{ID: "3", Name: "Bridal--gold--c", Category: "Bridal", ImageURL: "https://i.ibb.co/3/GOLD.jpg"},
		{ID: "4", Name: "Party--red-sequin--d", Category: "Party", ImageURL: ""},
	}
}

func productIDs(products []Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestFilterProducts(t *testing.T) {
	products := sampleProducts()

	cases := []struct {
		name     string
		category string
		term     string
		want     []string
	}{
		{name: "all without term", category: "All", want: []string{"1", "2", "3", "4"}},
		{name: "category only", category: "Bridal", want: []string{"1", "3"}},
		{name: "term is case insensitive", category: "All", term: "RED", want: []string{"1", "4"}},
		{name: "term falls back to name", category: "Party", term: "sequin", want: []string{"4"}},
		{name: "category and term", category: "Bridal", term: "gold", want: []string{"3"}},
		{name: "unknown category", category: "Festive", want: []string{}},
		{name: "empty category behaves as all", category: "", term: "green", want: []string{"2"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := productIDs(FilterProducts(products, tc.category, tc.term))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFilterProductsIsPure(t *testing.T) {
	products := sampleProducts()
	before := append([]Product(nil), products...)

	first := FilterProducts(products, "Bridal", "red")
	second := FilterProducts(products, "Bridal", "red")

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v and %v", first, second)
	}
	if !reflect.DeepEqual(products, before) {
		t.Fatalf("input was modified")
	}
}
