package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreeWayMerge_UnchangedKeepsBase(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"color": "red"})
	result := threeWayMerge(base, base, base, OwnerLocal)
	assert.Equal(t, map[string]Node{"color": "red"}, result)
}

func TestThreeWayMerge_OnlyLocalChanged(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"color": "red"})
	local := Node(map[string]Node{"color": "blue"})

	result := threeWayMerge(local, base, base, OwnerCloud)
	assert.Equal(t, map[string]Node{"color": "blue"}, result)
}

func TestThreeWayMerge_OnlyCloudChanged(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"color": "red"})
	cloud := Node(map[string]Node{"color": "green"})

	result := threeWayMerge(base, cloud, base, OwnerLocal)
	assert.Equal(t, map[string]Node{"color": "green"}, result)
}

func TestThreeWayMerge_BothChangedOwnerWins(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"color": "red"})
	local := Node(map[string]Node{"color": "blue"})
	cloud := Node(map[string]Node{"color": "green"})

	resultLocal := threeWayMerge(local, cloud, base, OwnerLocal)
	assert.Equal(t, map[string]Node{"color": "blue"}, resultLocal)

	resultCloud := threeWayMerge(local, cloud, base, OwnerCloud)
	assert.Equal(t, map[string]Node{"color": "green"}, resultCloud)
}

func TestThreeWayMerge_IndependentFieldsMergeWithoutConflict(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"color": "red", "temp": float64(20)})
	local := Node(map[string]Node{"color": "blue", "temp": float64(20)})
	cloud := Node(map[string]Node{"color": "red", "temp": float64(25)})

	result := threeWayMerge(local, cloud, base, OwnerLocal)
	assert.Equal(t, map[string]Node{"color": "blue", "temp": float64(25)}, result)
}

func TestThreeWayMerge_FieldAbsentFromBaseIsNewOnBothSides(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{})
	local := Node(map[string]Node{"fan": true})
	cloud := Node(map[string]Node{})

	result := threeWayMerge(local, cloud, base, OwnerCloud)
	assert.Equal(t, map[string]Node{"fan": true}, result)
}

func TestThreeWayMerge_NestedObjectRecursion(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"engine": map[string]Node{"rpm": float64(1000), "temp": float64(80)}})
	local := Node(map[string]Node{"engine": map[string]Node{"rpm": float64(1200), "temp": float64(80)}})
	cloud := Node(map[string]Node{"engine": map[string]Node{"rpm": float64(1000), "temp": float64(90)}})

	result := threeWayMerge(local, cloud, base, OwnerLocal)
	engine := result.(map[string]Node)["engine"].(map[string]Node)
	assert.Equal(t, float64(1200), engine["rpm"])
	assert.Equal(t, float64(90), engine["temp"])
}

func TestThreeWayMerge_DeletedOnBothSidesStaysAbsent(t *testing.T) {
	t.Parallel()

	base := Node(map[string]Node{"color": "red", "temp": float64(20)})
	local := Node(map[string]Node{"temp": float64(20)})
	cloud := Node(map[string]Node{"temp": float64(20)})

	result := threeWayMerge(local, cloud, base, OwnerLocal)
	obj := result.(map[string]Node)
	_, present := obj["color"]
	assert.False(t, present)
}
