package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nil and Null", nil, Null{}, true},
		{"ints", Int(3), Int(3), true},
		{"int vs string", Int(3), String("3"), false},
		{"null vs zero", Null{}, Int(0), false},
		{"lists", List{Int(1), String("x")}, List{Int(1), String("x")}, true},
		{"list order", List{Int(1), Int(2)}, List{Int(2), Int(1)}, false},
		{"maps", Map{"a": Int(1), "b": Bool(true)}, Map{"b": Bool(true), "a": Int(1)}, true},
		{"map missing key", Map{"a": Int(1)}, Map{"b": Int(1)}, false},
		{"nested", Map{"a": List{Map{"x": Null{}}}}, Map{"a": List{Map{"x": nil}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestMap_CopyOnWrite(t *testing.T) {
	orig := Map{"a": Int(1)}

	added := orig.With("b", Int(2))
	assert.Equal(t, Map{"a": Int(1)}, orig, "With must not modify the receiver")
	assert.Equal(t, Map{"a": Int(1), "b": Int(2)}, added)

	removed := added.Without("a")
	assert.Equal(t, Map{"a": Int(1), "b": Int(2)}, added, "Without must not modify the receiver")
	assert.Equal(t, Map{"b": Int(2)}, removed)

	var empty Map
	assert.Equal(t, Map{"k": String("v")}, empty.With("k", String("v")))
}

func TestMap_SortedKeysUTF16(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...), which sorts before
	// U+FF5E in UTF-16 even though its UTF-8 encoding sorts after.
	m := Map{"\uFF5E": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\uFF5E"}, m.SortedKeys())
}

func TestSensor_Accepts(t *testing.T) {
	counts := NewSensor("counts", KindMap)
	assert.True(t, counts.Accepts(Map{}))
	assert.True(t, counts.Accepts(Null{}))
	assert.True(t, counts.Accepts(nil))
	assert.False(t, counts.Accepts(Int(1)))

	anything := NewSensor("x", "")
	assert.Equal(t, KindAny, anything.Type)
	assert.True(t, anything.Accepts(List{}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("object")
	require.NoError(t, err)
	assert.Equal(t, KindMap, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindAny, k)

	_, err = ParseKind("float")
	assert.Error(t, err)

	_, err = ParseKind("decimal")
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":    42,
		"f":    float64(7),
		"s":    "x",
		"l":    []any{true, nil},
		"json": json.Number("9"),
	})
	require.NoError(t, err)
	assert.Equal(t, Map{
		"n":    Int(42),
		"f":    Int(7),
		"s":    String("x"),
		"l":    List{Bool(true), Null{}},
		"json": Int(9),
	}, v)

	_, err = FromAny(1.5)
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAny_RoundTrip(t *testing.T) {
	in := Map{"a": List{Int(1), String("b")}, "c": Bool(false), "d": Null{}}
	back, err := FromAny(ToAny(in))
	require.NoError(t, err)
	assert.True(t, Equal(in, back))
}

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"a":1,"b":[null,"x"]}`))
	require.NoError(t, err)
	assert.Equal(t, Map{"a": Int(1), "b": List{Null{}, String("x")}}, v)

	_, err = UnmarshalValue([]byte(`1.25`))
	assert.Error(t, err)
}
