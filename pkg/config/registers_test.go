package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegisterCatalog_CoversDefaultActiveSet(t *testing.T) {
	catalog := DefaultRegisterCatalog()
	for _, id := range DefaultActiveRegisterSet() {
		_, ok := catalog[id]
		require.True(t, ok, "default active register %q must exist in the catalog", id)
	}
}

func TestDefaultRegisterCatalog_IDsMatchKeys(t *testing.T) {
	catalog := DefaultRegisterCatalog()
	for id, r := range catalog {
		require.Equal(t, id, r.ID)
	}
}
