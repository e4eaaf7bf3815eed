package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_NullDeletesExistingField(t *testing.T) {
	t.Parallel()

	source := map[string]Node{"color": "red", "temp": float64(20)}
	patch := map[string]Node{"color": nil}

	result, err := merge(Node(source), Node(patch))
	require.NoError(t, err)

	obj := result.(map[string]Node)
	_, present := obj["color"]
	assert.False(t, present)
	assert.Equal(t, float64(20), obj["temp"])
}

func TestMerge_NullCollapseOnNewSubtree(t *testing.T) {
	t.Parallel()

	source := map[string]Node{}
	patch := map[string]Node{
		"engine": map[string]Node{
			"rpm":  nil,
			"temp": nil,
		},
	}

	result, err := merge(Node(source), Node(patch))
	require.NoError(t, err)

	obj := result.(map[string]Node)
	_, present := obj["engine"]
	assert.False(t, present, "all-null subtree should collapse and not appear")
}

func TestMerge_NullCollapsePartialSurvives(t *testing.T) {
	t.Parallel()

	source := map[string]Node{}
	patch := map[string]Node{
		"engine": map[string]Node{
			"rpm":  nil,
			"temp": float64(90),
		},
	}

	result, err := merge(Node(source), Node(patch))
	require.NoError(t, err)

	obj := result.(map[string]Node)
	engine, present := obj["engine"].(map[string]Node)
	require.True(t, present)
	assert.Equal(t, float64(90), engine["temp"])
	_, rpmPresent := engine["rpm"]
	assert.False(t, rpmPresent)
}

func TestMerge_RecursesIntoNestedObjects(t *testing.T) {
	t.Parallel()

	source := map[string]Node{"engine": map[string]Node{"rpm": float64(1000), "temp": float64(80)}}
	patch := map[string]Node{"engine": map[string]Node{"rpm": float64(1200)}}

	result, err := merge(Node(source), Node(patch))
	require.NoError(t, err)

	engine := result.(map[string]Node)["engine"].(map[string]Node)
	assert.Equal(t, float64(1200), engine["rpm"])
	assert.Equal(t, float64(80), engine["temp"])
}

func TestMerge_ArraysAreAtomic(t *testing.T) {
	t.Parallel()

	source := map[string]Node{"tags": []Node{"a", "b"}}
	patch := map[string]Node{"tags": []Node{"c"}}

	result, err := merge(Node(source), Node(patch))
	require.NoError(t, err)

	assert.Equal(t, []Node{"c"}, result.(map[string]Node)["tags"])
}

func TestMerge_MismatchedTypesRejected(t *testing.T) {
	t.Parallel()

	_, err := merge(Node(map[string]Node{"a": 1}), Node([]Node{1, 2}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestDelta_NoDifference(t *testing.T) {
	t.Parallel()

	reported := map[string]Node{"color": "red", "temp": float64(20)}
	desired := map[string]Node{"color": "red", "temp": float64(20)}

	assert.Nil(t, delta(Node(reported), Node(desired)))
}

func TestDelta_DetectsChangedLeaf(t *testing.T) {
	t.Parallel()

	reported := map[string]Node{"color": "red"}
	desired := map[string]Node{"color": "blue"}

	d := delta(Node(reported), Node(desired))
	assert.Equal(t, map[string]Node{"color": "blue"}, d)
}

func TestDelta_RemovedFieldBecomesNullMarker(t *testing.T) {
	t.Parallel()

	reported := map[string]Node{"color": "red", "on": true}
	desired := map[string]Node{"color": "red"}

	d := delta(Node(reported), Node(desired))
	obj := d.(map[string]Node)

	onVal, present := obj["on"]
	require.True(t, present)
	assert.Nil(t, onVal)
}

func TestDelta_NumbersEqualAcrossIntAndFloatRepresentation(t *testing.T) {
	t.Parallel()

	assert.True(t, numbersEqual(float64(20), float64(20)))
	assert.False(t, numbersEqual(float64(20.5), float64(20)))
}

func TestDelta_MergeRoundTrip(t *testing.T) {
	t.Parallel()

	reported := map[string]Node{"color": "red", "temp": float64(20)}
	desired := map[string]Node{"color": "blue", "temp": float64(20), "fan": true}

	d := delta(Node(reported), Node(desired))

	merged, err := merge(Node(reported), d)
	require.NoError(t, err)

	assert.Equal(t, "blue", merged.(map[string]Node)["color"])
	assert.Equal(t, true, merged.(map[string]Node)["fan"])
}

func TestValidateDepth_RejectsOverMax(t *testing.T) {
	t.Parallel()

	deep := Node(true)
	for i := 0; i < 7; i++ {
		deep = map[string]Node{"n": deep}
	}

	err := validateDepth(deep)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestValidateDepth_AcceptsAtMax(t *testing.T) {
	t.Parallel()

	deep := Node(true)
	for i := 0; i < 6; i++ {
		deep = map[string]Node{"n": deep}
	}

	assert.NoError(t, validateDepth(deep))
}
