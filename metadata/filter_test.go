package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc() Document {
	return Document{
		"category": String("news"),
		"year":     Int(2024),
		"score":    Float(0.75),
		"draft":    Bool(false),
		"tags":     Array(String("go"), String("vector")),
	}
}

func TestFilterMatches(t *testing.T) {
	doc := testDoc()

	t.Run("Equal", func(t *testing.T) {
		assert.True(t, Eq("category", String("news")).Matches(doc))
		assert.False(t, Eq("category", String("sports")).Matches(doc))
		assert.False(t, Eq("missing", String("news")).Matches(doc))
	})

	t.Run("EqualNumericCoercion", func(t *testing.T) {
		assert.True(t, Eq("year", Float(2024)).Matches(doc))
		assert.True(t, Eq("score", Float(0.75)).Matches(doc))
		assert.False(t, Eq("year", Float(2024.5)).Matches(doc))
	})

	t.Run("NotEqual", func(t *testing.T) {
		assert.True(t, Ne("category", String("sports")).Matches(doc))
		assert.False(t, Ne("category", String("news")).Matches(doc))
	})

	t.Run("Ordering", func(t *testing.T) {
		assert.True(t, Gt("year", Int(2020)).Matches(doc))
		assert.False(t, Gt("year", Int(2024)).Matches(doc))
		assert.True(t, Gte("year", Int(2024)).Matches(doc))
		assert.True(t, Lt("score", Float(1)).Matches(doc))
		assert.True(t, Lte("score", Float(0.75)).Matches(doc))
		assert.False(t, Lt("score", Float(0.5)).Matches(doc))
	})

	t.Run("OrderingOnStrings", func(t *testing.T) {
		assert.True(t, Gt("category", String("abc")).Matches(doc))
		assert.False(t, Lt("category", String("abc")).Matches(doc))
	})

	t.Run("In", func(t *testing.T) {
		assert.True(t, In("category", String("blog"), String("news")).Matches(doc))
		assert.False(t, In("category", String("blog"), String("sports")).Matches(doc))
	})

	t.Run("ContainsArray", func(t *testing.T) {
		assert.True(t, Contains("tags", String("go")).Matches(doc))
		assert.False(t, Contains("tags", String("rust")).Matches(doc))
	})

	t.Run("ContainsSubstring", func(t *testing.T) {
		assert.True(t, Contains("category", String("new")).Matches(doc))
		assert.False(t, Contains("category", String("sports")).Matches(doc))
	})
}

func TestFilterSetMatches(t *testing.T) {
	doc := testDoc()

	t.Run("NilMatchesAll", func(t *testing.T) {
		var fs *FilterSet
		assert.True(t, fs.Matches(doc))
		assert.True(t, (&FilterSet{}).Matches(doc))
	})

	t.Run("Conjunction", func(t *testing.T) {
		fs := Filters(
			Eq("category", String("news")),
			Gte("year", Int(2024)),
		)
		assert.True(t, fs.Matches(doc))

		fs = Filters(
			Eq("category", String("news")),
			Gt("year", Int(2024)),
		)
		assert.False(t, fs.Matches(doc))
	})

	t.Run("EqMap", func(t *testing.T) {
		fs, err := EqMap(map[string]any{"category": "news", "year": int64(2024)})
		require.NoError(t, err)
		assert.True(t, fs.Matches(doc))

		fs, err = EqMap(map[string]any{"category": "sports"})
		require.NoError(t, err)
		assert.False(t, fs.Matches(doc))
	})
}
