package demand_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gasflex/internal/adapters/demand"
	"github.com/alejandrodnm/gasflex/internal/domain"
)

func TestNew_SelectsRegisteredModule(t *testing.T) {
	sys, err := demand.New(demand.ModuleConstantElasticity, demand.Config{})
	require.NoError(t, err)
	assert.NotNil(t, sys)
}

func TestNew_RejectsEmptyName(t *testing.T) {
	_, err := demand.New("", demand.Config{})
	assert.ErrorIs(t, err, domain.ErrNoDemandModule)
}

func TestNew_RejectsUnknownModule(t *testing.T) {
	_, err := demand.New("nope", demand.Config{})
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown demand module "nope"`)
	// El error lista los módulos disponibles.
	assert.ErrorContains(t, err, demand.ModuleConstantElasticity)
}

func TestKnown_ListsModules(t *testing.T) {
	assert.Contains(t, demand.Known(), demand.ModuleConstantElasticity)
}
