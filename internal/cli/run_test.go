package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ConsoleSession(t *testing.T) {
	env := newEnv(t, "")
	manifest := env.writeFile("acme.json", acmeManifest)

	script := strings.Join([]string{
		"ABC123",
		":kitchen Hamid A",
		"ABC123",
		":dish B",
		"DEF456",
		":return Sultan",
		"ABC123",
		"short",
		":import " + manifest,
		":bogus",
		":kitchen Sultan",
		":status",
		":quit",
		"GHI789",
	}, "\n")

	out, err := env.run(script, "run")
	require.NoError(t, err, out)

	for _, want := range []string{
		"Terminal test-1 ready with 0 bowl(s). Type :quit to stop.\n",
		"✗ UNKNOWN_MODE",
		"· kitchen mode: Hamid, dish A\n",
		"✓ Prepared: ABC123\n",
		"· kitchen mode: Hamid, dish B\n",
		"✓ Prepared: DEF456\n",
		"· return mode: Sultan\n",
		"✓ Returned: ABC123\n",
		"✗ INVALID_CODE",
		"✓ Imported 2 bowl(s): 2 created, 0 updated, 0 moved from prepared\n",
		"✗ unknown command :bogus\n",
		`✗ operator "Sultan" is not on the kitchen roster`,
		"· active 2, prepared today 1, returned today 1, my scans today 1, sync ",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "GHI789", "input after :quit is ignored")

	// The terminal pushed its state to the cache on the way out.
	status := env.mustRun("--format", "json", "status")
	var res StatusResult
	decode(t, status, &res)
	assert.Equal(t, 2, res.Counts.Active)
	assert.Equal(t, 1, res.Counts.PreparedToday)
	assert.Equal(t, 1, res.Counts.ReturnedToday)
}

func TestRun_InitialSessionFromFlags(t *testing.T) {
	env := newEnv(t, "")

	out, err := env.run("XYZ987\n", "run", "-m", "kitchen", "-o", "Richa", "-d", "D")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Prepared: XYZ987\n")

	out = env.mustRun("--format", "json", "status", "-o", "Richa")
	var res StatusResult
	decode(t, out, &res)
	assert.Equal(t, 1, res.Counts.MyScansToday)
	require.Len(t, res.Overnight.Lines, 1)
	assert.Equal(t, "D", res.Overnight.Lines[0].Dish)
}

func TestRun_RejectsUnknownInitialOperator(t *testing.T) {
	env := newEnv(t, "")

	_, err := env.run("", "run", "-m", "return", "-o", "Hamid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConsole_DishRequiresKitchenMode(t *testing.T) {
	env := newEnv(t, "")

	out, err := env.run(":return Alan\n:dish A\n:kitchen Jash\n:dish Q9\n:dish\n", "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✗ dish applies to kitchen mode only\n")
	assert.Contains(t, out, `✗ unknown dish "Q9"`)
	assert.Contains(t, out, "✗ usage: :dish <dish>\n")
}
