package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func viewsFrom(edges ...string) *APISpec {
	spec := &APISpec{}
	for i := 0; i+1 < len(edges); i += 2 {
		spec.Views = append(spec.Views, ViewSpec{Name: edges[i], From: edges[i+1]})
	}
	return spec
}

func TestFindViewCycles_None(t *testing.T) {
	spec := viewsFrom("A", "Orders", "B", "A", "C", "B")
	assert.Empty(t, FindViewCycles(spec))
}

func TestFindViewCycles_SelfLoop(t *testing.T) {
	cycles := FindViewCycles(viewsFrom("A", "A"))
	assert.Equal(t, []ViewCycle{{Path: []string{"A", "A"}, Message: "view cycle: A → A"}}, cycles)
}

func TestFindViewCycles_StartsAtSmallestMember(t *testing.T) {
	cycles := FindViewCycles(viewsFrom("C", "A", "A", "B", "B", "C"))
	assert.Equal(t, []ViewCycle{{Path: []string{"A", "B", "C", "A"}, Message: "view cycle: A → B → C → A"}}, cycles)
}

func TestFindViewCycles_TailIsNotPartOfCycle(t *testing.T) {
	cycles := FindViewCycles(viewsFrom("Tail", "X", "X", "Y", "Y", "X"))
	assert.Len(t, cycles, 1)
	assert.Equal(t, []string{"X", "Y", "X"}, cycles[0].Path)
}

func TestFindViewCycles_SortedByPath(t *testing.T) {
	cycles := FindViewCycles(viewsFrom("Q", "P", "P", "Q", "B", "A", "A", "B"))
	assert.Len(t, cycles, 2)
	assert.Equal(t, []string{"A", "B", "A"}, cycles[0].Path)
	assert.Equal(t, []string{"P", "Q", "P"}, cycles[1].Path)
}
