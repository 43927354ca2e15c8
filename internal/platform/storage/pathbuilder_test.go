package storage

import "testing"

func TestUploadName(t *testing.T) {
	cases := []struct {
		category, file, id, want string
		wantErr                  bool
	}{
		{category: "Bridal", file: "red lehenga.jpg", id: "abc", want: "Bridal--red lehenga--abc"},
		{category: "Bridal", file: "C:\\photos\\gold.final.png", id: "abc", want: "Bridal--gold.final--abc"},
		{category: "Bridal", file: "", id: "abc", want: "Bridal--image--abc"},
		{category: "", file: "a.jpg", id: "abc", wantErr: true},
		{category: "Bri/dal", file: "a.jpg", id: "abc", wantErr: true},
		{category: "Bri--dal", file: "a.jpg", id: "abc", wantErr: true},
	}
	for _, tc := range cases {
		got, err := UploadName(tc.category, tc.file, tc.id)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %+v", tc)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("UploadName(%q, %q) = %q, %v; want %q", tc.category, tc.file, got, err, tc.want)
		}
	}
}

func TestRetagName(t *testing.T) {
	got, ok := RetagName("Bridal--red--123", "Bridal", "Festive")
	if !ok || got != "Festive--red--123" {
		t.Fatalf("unexpected retag %q %v", got, ok)
	}
	if _, ok := RetagName("BridalWear--red", "Bridal", "Festive"); ok {
		t.Fatalf("expected prefix match to require the separator")
	}
}

func TestValidateCategory(t *testing.T) {
	for _, name := range []string{"Bridal", " Party Wear ", "Haldi & Mehendi"} {
		if err := ValidateCategory(name); err != nil {
			t.Fatalf("expected %q to be accepted: %v", name, err)
		}
	}
	for _, name := range []string{"", "  ", "Bridal/Party", "Bridal\\Party", "..", "Bridal--Party"} {
		if err := ValidateCategory(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestImagePathRejectsTraversal(t *testing.T) {
	if _, err := ImagePath("lehangaImages/", "../secret"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	p, err := ImagePath("lehangaImages/", "Bridal--a--1")
	if err != nil || p != "lehangaImages/Bridal--a--1" {
		t.Fatalf("unexpected path %q %v", p, err)
	}
}
