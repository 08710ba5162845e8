package core

import "testing"

func f64(v float64) *float64 { return &v }

func TestReleaseYear(t *testing.T) {
	tests := []struct {
		name     string
		meta     *ItemMetadata
		wantYear int
		wantOK   bool
	}{
		{"full date", &ItemMetadata{ReleaseDate: "2023-05-12"}, 2023, true},
		{"year only", &ItemMetadata{ReleaseDate: "2019"}, 2019, true},
		{"empty", &ItemMetadata{}, 0, false},
		{"garbage", &ItemMetadata{ReleaseDate: "soon"}, 0, false},
		{"out of range", &ItemMetadata{ReleaseDate: "1024"}, 0, false},
		{"nil receiver", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, ok := tt.meta.ReleaseYear()
			if year != tt.wantYear || ok != tt.wantOK {
				t.Errorf("ReleaseYear() = (%d, %v), want (%d, %v)", year, ok, tt.wantYear, tt.wantOK)
			}
		})
	}
}

func TestPriceTier(t *testing.T) {
	tests := []struct {
		name string
		meta *ItemMetadata
		want string
	}{
		{"unknown", &ItemMetadata{}, ""},
		{"free", &ItemMetadata{Price: f64(0)}, PriceTierFree},
		{"budget", &ItemMetadata{Price: f64(19.99)}, PriceTierBudget},
		{"mid", &ItemMetadata{Price: f64(20)}, PriceTierMid},
		{"premium", &ItemMetadata{Price: f64(59.99)}, PriceTierPremium},
		{"nil receiver", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.PriceTier(); got != tt.want {
				t.Errorf("PriceTier() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEra(t *testing.T) {
	tests := []struct {
		name string
		date string
		want string
	}{
		{"recent", "2023-01-01", EraRecent},
		{"modern", "2017", EraModern},
		{"classic", "2012", EraClassic},
		{"retro", "1998", EraRetro},
		{"unknown", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ItemMetadata{ReleaseDate: tt.date}
			if got := m.Era(); got != tt.want {
				t.Errorf("Era() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenreSet(t *testing.T) {
	m := &ItemMetadata{Genres: []string{"RPG", " Adventure ", "", "rpg"}}
	set := m.GenreSet()
	if len(set) != 2 || !set["rpg"] || !set["adventure"] {
		t.Errorf("GenreSet() = %v", set)
	}
	var nilMeta *ItemMetadata
	if nilMeta.GenreSet() != nil {
		t.Errorf("nil receiver should return nil set")
	}
}

func TestPriceRangeContains(t *testing.T) {
	r := &PriceRange{Min: 10, Max: 40}
	tests := []struct {
		price float64
		want  bool
	}{
		{10, true},
		{40, true}, // 闭区间
		{25, true},
		{9.99, false},
		{40.01, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.price); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.price, got, tt.want)
		}
	}
	var nilRange *PriceRange
	if !nilRange.Contains(999) {
		t.Errorf("nil range should contain everything")
	}
}
