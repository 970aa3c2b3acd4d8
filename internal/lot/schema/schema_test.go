package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLot = `{
  "floorx": 2, "floory": 1, "stories": 1, "subtr": 0, "terrain": 0, "rot": 0,
  "infr": {
    "floor": {"dict": ["oak"], "levels": [[{"run": 2, "value": 0}]]},
    "wall": {"dict": ["brick", "wood"], "levels": [[{"x": {"f": 0, "b": 1}}, {"run": 4, "value": 0}, null]]}
  }
}`

func TestValidator_AcceptsLot(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	loc, err := v.Validate([]byte(validLot))
	require.NoError(t, err)
	assert.Empty(t, loc)
}

func TestValidator_RejectsBadDocuments(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cases := map[string]struct {
		doc string
		loc string
	}{
		"missing floor dict": {
			doc: `{"floorx":1,"floory":1,"stories":1,"infr":{"floor":{"levels":[[0]]},"wall":{"dict":[],"levels":[[0,0,0,0]]}}}`,
			loc: "/infr/floor",
		},
		"zero run": {
			doc: `{"floorx":1,"floory":1,"stories":1,"infr":{"floor":{"dict":["a"],"levels":[[{"run":0,"value":0}]]},"wall":{"dict":[],"levels":[[0,0,0,0]]}}}`,
			loc: "/infr/floor/levels/0/0",
		},
		"string floor entry": {
			doc: `{"floorx":1,"floory":1,"stories":1,"infr":{"floor":{"dict":["a"],"levels":[["0"]]},"wall":{"dict":[],"levels":[[0,0,0,0]]}}}`,
			loc: "/infr/floor/levels/0/0",
		},
		"segment without back": {
			doc: `{"floorx":1,"floory":1,"stories":1,"infr":{"floor":{"dict":["a"],"levels":[[0]]},"wall":{"dict":["w"],"levels":[[{"y":{"f":0}},0,0,0]]}}}`,
			loc: "/infr/wall/levels/0/0",
		},
		"unknown wall key": {
			doc: `{"floorx":1,"floory":1,"stories":1,"infr":{"floor":{"dict":["a"],"levels":[[0]]},"wall":{"dict":["w"],"levels":[[{"q":1},0,0,0]]}}}`,
			loc: "/infr/wall/levels/0/0",
		},
		"negative width": {
			doc: `{"floorx":-1,"floory":1,"stories":1,"infr":{"floor":{"dict":["a"],"levels":[[0]]},"wall":{"dict":[],"levels":[[0,0,0,0]]}}}`,
			loc: "/floorx",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			loc, err := v.Validate([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, loc, tc.loc)
		})
	}

	_, err = v.Validate([]byte(`{not json`))
	require.Error(t, err)
}
