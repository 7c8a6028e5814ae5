package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleHeader = "Name,Surname,Real Name,Gender,Type,Nationality,Have Image [Y/N]\n"

func TestParseRecords(t *testing.T) {
	input := peopleHeader +
		"Ana,Lopez,Ana María López,F,\"Hero, Villain\",ES,Y\n" +
		"\n" +
		"Smith,,,,,,N\n"

	records, err := ParseRecords(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	ana := records[0]
	assert.Equal(t, 2, ana.Line)
	assert.Equal(t, "Ana", ana.Name)
	assert.Equal(t, "Lopez", ana.Surname.String)
	assert.Equal(t, "Ana María López", ana.RealName.String)
	assert.Equal(t, "F", ana.Gender.String)
	assert.True(t, ana.HasImage)
	assert.Equal(t, []string{"Hero", "Villain"}, ana.Types)
	assert.Equal(t, []string{"ES"}, ana.Nationalities)

	smith := records[1]
	assert.Equal(t, 4, smith.Line)
	assert.False(t, smith.Surname.Valid)
	assert.False(t, smith.RealName.Valid)
	assert.False(t, smith.HasImage)
	assert.Empty(t, smith.Types)
	assert.Empty(t, smith.Nationalities)
}

func TestParseRecords_HeaderCaseAndOrder(t *testing.T) {
	input := "have image [y/n],NATIONALITY,type,gender,real name,surname,name\n" +
		"N,US,Hero,M,,Parker,Peter\n"

	records, err := ParseRecords(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Peter", records[0].Name)
	assert.Equal(t, "Parker", records[0].Surname.String)
	assert.Equal(t, []string{"US"}, records[0].Nationalities)
}

func TestParseRecords_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBF" + peopleHeader + "Peter,Parker,,,,,N\n"

	records, err := ParseRecords(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Peter", records[0].Name)
}

func TestParseRecords_ReplacesInvalidUTF8(t *testing.T) {
	input := peopleHeader + "Jos\xE9,Garc\xEDa,,,,,N\n"

	records, err := ParseRecords(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Jos�", records[0].Name)
	assert.Equal(t, "Garc�a", records[0].Surname.String)
}

func TestParseRecords_HeaderOnly(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(peopleHeader), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}

func TestParseRecords_FormatErrors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantLine   int
		wantColumn string
	}{
		{
			name:       "missing column",
			input:      "Name,Surname,Real Name,Gender,Type,Have Image [Y/N]\nPeter,Parker,,,,N\n",
			wantLine:   1,
			wantColumn: ColNationality,
		},
		{
			name:       "empty name",
			input:      peopleHeader + "Peter,Parker,,,,,N\n  ,Nobody,,,,,N\n",
			wantLine:   3,
			wantColumn: ColName,
		},
		{
			name:  "empty file",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords(strings.NewReader(tt.input), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSourceFormat)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			if tt.wantLine > 0 {
				assert.Equal(t, tt.wantLine, fe.Line)
			}
			assert.Equal(t, tt.wantColumn, fe.Column)
		})
	}
}

func TestParseRecords_TooLarge(t *testing.T) {
	input := peopleHeader + strings.Repeat("Peter,Parker,,,,,N\n", 100)

	_, err := ParseRecords(strings.NewReader(input), 64)
	assert.ErrorIs(t, err, ErrSourceTooLarge)

	records, err := ParseRecords(strings.NewReader(input), int64(len(input)))
	require.NoError(t, err)
	assert.Len(t, records, 100)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(peopleHeader+"Peter,Parker,,,Hero,US,Y\n"), 0o600))

	records, err := ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"Hero"}, records[0].Types)
}

func TestReadFile_NotFound(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv"), 0)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestReadFile_Directory(t *testing.T) {
	_, err := ReadFile(t.TempDir(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotFound)
	assert.Equal(t, "SRC001", MapError(err).Code)
}

func TestReadFile_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(peopleHeader), 0o000))

	_, err := ReadFile(path, 0)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestParseRecords_HaveImageIsExactlyY(t *testing.T) {
	input := peopleHeader +
		"A,,,,,, Y\n" +
		"B,,,,,,=\"Y\"\n" +
		"C,,,,,,y\n" +
		"D,,,,,,Y\n"

	records, err := ParseRecords(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, records, 4)

	got := map[string]bool{}
	for _, r := range records {
		got[r.Name] = r.HasImage
	}
	assert.Equal(t, map[string]bool{"A": false, "B": false, "C": false, "D": true}, got)
}
