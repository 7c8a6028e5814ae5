package core

import (
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

// ----------------------------------------------------------------------------
// ToPgText Tests
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantValue string
	}{
		{name: "simple value", input: "Parker", wantValid: true, wantValue: "Parker"},
		{name: "trims whitespace", input: "  Parker \t", wantValid: true, wantValue: "Parker"},
		{name: "keeps inner spaces", input: "Mary Jane", wantValid: true, wantValue: "Mary Jane"},
		{name: "empty string", input: "", wantValid: false},
		{name: "whitespace only", input: "   ", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgText(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgText(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if tt.wantValid && got.String != tt.wantValue {
				t.Errorf("ToPgText(%q).String = %q, want %q", tt.input, got.String, tt.wantValue)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Peter", "Peter"},
		{"  Peter  ", "Peter"},
		{`="00123"`, "00123"},
		{` ="Y" `, "Y"},
		{`="`, `="`},
		{"", ""},
		{"Hero, Villain", "Hero, Villain"},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// FullNames Tests
// ----------------------------------------------------------------------------

func TestFullNames(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		surname pgtype.Text
		wantNS  string
		wantSN  string
	}{
		{
			name:    "name and surname",
			first:   "Peter",
			surname: pgtype.Text{String: "Parker", Valid: true},
			wantNS:  "Peter, Parker",
			wantSN:  "Parker, Peter",
		},
		{
			name:   "absent surname",
			first:  "Smith",
			wantNS: "Smith, ",
			wantSN: ", Smith",
		},
		{
			name:    "multi word name",
			first:   "Mary Jane",
			surname: pgtype.Text{String: "Watson", Valid: true},
			wantNS:  "Mary Jane, Watson",
			wantSN:  "Watson, Mary Jane",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, sn := FullNames(tt.first, tt.surname)
			if ns != tt.wantNS {
				t.Errorf("nameSurname = %q, want %q", ns, tt.wantNS)
			}
			if sn != tt.wantSN {
				t.Errorf("surnameName = %q, want %q", sn, tt.wantSN)
			}
		})
	}
}

func TestPersonRecord_FullNames(t *testing.T) {
	rec := PersonRecord{Name: "Peter", Surname: ToPgText("Parker")}
	ns, sn := rec.FullNames()
	if ns != "Peter, Parker" || sn != "Parker, Peter" {
		t.Errorf("FullNames() = (%q, %q)", ns, sn)
	}
}

// ----------------------------------------------------------------------------
// SplitTokens Tests
// ----------------------------------------------------------------------------

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single", input: "Hero", want: []string{"Hero"}},
		{name: "comma and space", input: "Hero, Villain", want: []string{"Hero", "Villain"}},
		{name: "no space", input: "US,ES", want: []string{"US", "ES"}},
		{name: "empty", input: "", want: nil},
		{name: "whitespace", input: "   ", want: nil},
		{name: "drops empty tokens", input: "Hero,, ,Villain,", want: []string{"Hero", "Villain"}},
		{name: "dedupes first seen", input: "ES, US, ES", want: []string{"ES", "US"}},
		{name: "case sensitive", input: "hero, Hero", want: []string{"hero", "Hero"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitTokens(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitTokens(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseHasImage Tests
// ----------------------------------------------------------------------------

func TestParseHasImage(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Y", true},
		{" Y ", false},
		{"Y ", false},
		{`="Y"`, false},
		{"N", false},
		{"y", false},
		{"Yes", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ParseHasImage(tt.input); got != tt.want {
			t.Errorf("ParseHasImage(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// MakeHeaderIndex Tests
// ----------------------------------------------------------------------------

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{" Name ", "SURNAME", "Have Image [Y/N]", "name"})

	tests := []struct {
		col  string
		want int
	}{
		{"name", 0},
		{"surname", 1},
		{"have image [y/n]", 2},
	}
	for _, tt := range tests {
		if got, ok := idx[tt.col]; !ok || got != tt.want {
			t.Errorf("idx[%q] = %d, %v; want %d", tt.col, got, ok, tt.want)
		}
	}

	if len(idx) != 3 {
		t.Errorf("len(idx) = %d, want 3 (first occurrence wins)", len(idx))
	}
}
