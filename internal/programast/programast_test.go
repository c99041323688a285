// SPDX-License-Identifier: Apache-2.0

package programast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omnilang/omnilang/internal/programast"
)

func TestModule_IsOwnership(t *testing.T) {
	assert.False(t, programast.Module{Mode: programast.GCMode}.IsOwnership())
	assert.False(t, programast.Module{}.IsOwnership())
	assert.True(t, programast.Module{Mode: programast.OwnershipMode}.IsOwnership())
}

func TestFunctionDecl_HasDecorator(t *testing.T) {
	fn := programast.FunctionDecl{
		Decorators: []programast.Decorator{{Name: "oracle"}},
	}
	assert.True(t, fn.HasDecorator("oracle"))
	assert.False(t, fn.HasDecorator("mesh"))
}

func TestItem_ExactlyOneVariant(t *testing.T) {
	items := []programast.Item{
		{Function: &programast.FunctionDecl{Name: "f"}},
		{Struct: &programast.StructDecl{Name: "S"}},
		{Trait: &programast.TraitDecl{Name: "T"}},
		{Impl: &programast.ImplDecl{StructName: "S"}},
		{Const: &programast.ConstDecl{Name: "c"}},
	}
	for _, item := range items {
		count := 0
		if item.Function != nil {
			count++
		}
		if item.Struct != nil {
			count++
		}
		if item.Trait != nil {
			count++
		}
		if item.Impl != nil {
			count++
		}
		if item.Const != nil {
			count++
		}
		assert.Equal(t, 1, count)
	}
}
