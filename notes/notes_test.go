package notes

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFixture(t *testing.T) {
	f, err := os.Open("testdata/models.txt")
	require.NoError(t, err)
	defer f.Close()

	entries, err := Parse(f)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "bayesian logistic regression", entries[0].Name)
	assert.Len(t, entries[0].Details, 2)
	assert.Contains(t, entries[0].Details[1], "Bernoulli")

	assert.Equal(t, "gaussian mixture model", entries[1].Name)
	assert.Len(t, entries[1].Details, 3)

	assert.Equal(t, "mixture of factor analyzers", entries[2].Name)
	require.Len(t, entries[2].Details, 2)
	assert.Contains(t, entries[2].Details[1], "latent")
}

func TestParseEntryWithoutDetails(t *testing.T) {
	entries, err := Parse(strings.NewReader("- hidden markov model\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hidden markov model", entries[0].Name)
	assert.Empty(t, entries[0].Details)
}

func TestParseContinuationLines(t *testing.T) {
	doc := "- gaussian process\n  regression\n  * f ~ GP(0, k) with a squared\n    exponential kernel\n"
	entries, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gaussian process regression", entries[0].Name)
	require.Len(t, entries[0].Details, 1)
	assert.Equal(t, "f ~ GP(0, k) with a squared exponential kernel", entries[0].Details[0])
}

func TestParseEmptyDocument(t *testing.T) {
	entries, err := Parse(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		doc    string
		line   int
		reason string
	}{
		{"detail before entry", "* orphan detail\n", 1, "detail"},
		{"text before entry", "stray text\n", 1, "text"},
		{"empty name", "- model one\n-\n", 2, "name"},
		{"invalid utf8", "- ok\n* bad \xff\xfe\n", 2, "UTF-8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc))
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.line, perr.Line)
			assert.Contains(t, err.Error(), tc.reason)
		})
	}
}

func TestValidate(t *testing.T) {
	n, err := Validate(strings.NewReader("- a\n* d1\n- b\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Validate(strings.NewReader("* orphan\n"))
	assert.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	entries := []Entry{
		{Name: "bayesian logistic regression", Details: []string{"w ~ MVN(0, I)"}},
		{Name: "gaussian mixture model"},
	}
	out, err := Render(entries, FormatJSON)
	require.NoError(t, err)

	var roundTrip []Entry
	require.NoError(t, json.Unmarshal(out, &roundTrip))
	assert.Equal(t, entries, roundTrip)
}

func TestRenderYAML(t *testing.T) {
	entries := []Entry{
		{Name: "mixture of factor analyzers", Details: []string{"z_i ~ Categorical(pi)"}},
	}
	out, err := Render(entries, FormatYAML)
	require.NoError(t, err)

	var roundTrip []Entry
	require.NoError(t, yaml.Unmarshal(out, &roundTrip))
	assert.Equal(t, entries, roundTrip)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("toml")
	assert.Error(t, err)

	_, err = Render(nil, Format("toml"))
	assert.Error(t, err)
}
