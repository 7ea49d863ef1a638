package scen

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/internal/testutil"
	"github.com/ecoscen/ecoscen/scen/table"
)

func TestCompositorAcceptsNamesFromEitherCatalog(t *testing.T) {
	c := NewCompositor(testutil.FourGroupNames)

	// One Ecosim name, one Ecotracer name, one vulnerability: each lives
	// in only one catalog, none is an error.
	err := c.SetConstants(map[string]float64{
		"max_rel_pb_1_Sharks":       3.0,
		"init_c_2_Reef_Fish":        0.2,
		"vuln_1_Sharks_2_Reef_Fish": 4.0,
		"env_decay_r":               0.5,
	})
	require.NoError(t, err)

	p, ok := c.Lookup("max_rel_pb_1_Sharks")
	require.True(t, ok)
	assert.Equal(t, ModeConstant, p.Mode)
}

func TestCompositorRejectsOnlyGloballyUnknownNames(t *testing.T) {
	c := NewCompositor(testutil.FourGroupNames)

	err := c.SetConstants(map[string]float64{
		"max_rel_pb_1_Sharks": 3.0,
		"bogus_a":             1.0,
		"bogus_b":             2.0,
	})
	require.Error(t, err)
	var cfgErr *engine.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "bogus_a, bogus_b")
	assert.NotContains(t, err.Error(), "max_rel_pb")

	// The recognized name was still bound; the caller may fix the rest
	// and retry.
	p, ok := c.Lookup("max_rel_pb_1_Sharks")
	require.True(t, ok)
	assert.Equal(t, ModeConstant, p.Mode)
}

func TestCompositorAppliesAcrossSubsystems(t *testing.T) {
	sess := newRecordingSession(t)
	c := NewCompositor(testutil.FourGroupNames)
	require.NoError(t, c.SetConstants(map[string]float64{
		"max_rel_pb_1_Sharks": 3.0,
		"init_c_1_Sharks":     0.2,
	}))

	require.NoError(t, c.ApplyConstants(sess))
	require.Len(t, sess.groupCalls, 2)
	assert.Equal(t, engine.FieldMaxRelPB, sess.groupCalls[0].field)
	assert.Equal(t, engine.FieldInitialConc, sess.groupCalls[1].field)
}

func TestAvailableParameterNames(t *testing.T) {
	c := NewCompositor(testutil.FourGroupNames)

	all, err := c.AvailableParameterNames(ParameterFilter{})
	require.NoError(t, err)
	assert.Len(t, all, (8*4+16)+(6*4+5))

	env, err := c.AvailableParameterNames(ParameterFilter{EnvOnly: true})
	require.NoError(t, err)
	assert.Len(t, env, 5)

	sim := engine.StageEcosim
	simNames, err := c.AvailableParameterNames(ParameterFilter{Stage: &sim})
	require.NoError(t, err)
	assert.Len(t, simNames, 8*4+16)

	sharks, err := c.AvailableParameterNames(ParameterFilter{Groups: []string{"Sharks"}})
	require.NoError(t, err)
	assert.Len(t, sharks, 8+6, "per-group fields only; vulnerabilities excluded")
	for _, n := range sharks {
		assert.True(t, strings.HasSuffix(n, "_1_Sharks"))
	}
}

func TestLongParameterRows(t *testing.T) {
	c := NewCompositor(testutil.FourGroupNames)
	rows := c.LongParameterRows()

	// 5 environment scalars plus 14 field prefixes per group.
	require.Len(t, rows, 5+4*(8+6))

	for i := 0; i < 5; i++ {
		assert.Equal(t, "Environment", rows[i].Group)
		assert.Zero(t, rows[i].Scenario)
		assert.True(t, math.IsNaN(rows[i].Value))
	}
	assert.Equal(t, "env_init_c", rows[0].Parameter)

	// Groups follow in model order, Ecosim fields before Ecotracer fields.
	assert.Equal(t, "Sharks", rows[5].Group)
	assert.Equal(t, "density_dep_catchability", rows[5].Parameter)
	assert.Equal(t, "init_c", rows[5+8].Parameter)
	assert.Equal(t, "Reef Fish", rows[5+14].Group)
	assert.Equal(t, "Detritus", rows[len(rows)-1].Group)
	assert.Equal(t, "excretion_r", rows[len(rows)-1].Parameter)
}

func TestValidateTable(t *testing.T) {
	c := NewCompositor(testutil.FourGroupNames)
	require.NoError(t, c.SetVariables([]string{"init_c_1_Sharks", "env_decay_r"}))

	good, err := table.New(
		[]string{"scenario", "init_c_1_Sharks", "env_decay_r"},
		[][]float64{{1, 0.1, 0.5}},
	)
	require.NoError(t, err)
	assert.NoError(t, c.ValidateTable(good))

	missing, err := table.New([]string{"scenario", "init_c_1_Sharks"}, [][]float64{{1, 0.1}})
	require.NoError(t, err)
	err = c.ValidateTable(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env_decay_r")

	extra, err := table.New(
		[]string{"scenario", "init_c_1_Sharks", "env_decay_r", "mystery"},
		[][]float64{{1, 0.1, 0.5, 9}},
	)
	require.NoError(t, err)
	err = c.ValidateTable(extra)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestCompositorClone(t *testing.T) {
	c := NewCompositor(testutil.FourGroupNames)
	require.NoError(t, c.SetConstants(map[string]float64{"init_c_1_Sharks": 0.1}))

	clone := c.Clone()
	require.NoError(t, clone.SetConstants(map[string]float64{"init_c_1_Sharks": 0.9}))

	orig, _ := c.Lookup("init_c_1_Sharks")
	cl, _ := clone.Lookup("init_c_1_Sharks")
	assert.Equal(t, 0.1, orig.Value)
	assert.Equal(t, 0.9, cl.Value)
}
