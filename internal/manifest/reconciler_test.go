package manifest

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/testutil"
)

var importTime = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

func newTestReconciler(opts ...Option) *Reconciler {
	clock := testutil.NewFakeClock(importTime)
	return NewReconciler(append([]Option{WithClock(clock.Now)}, opts...)...)
}

// Scenario C.
func TestApply_IntraBatchDuplicateCountsOnce(t *testing.T) {
	store := bowl.NewStore()
	r := newTestReconciler()

	res, err := r.Apply(store, []byte(`{"boxes":[{"dishes":[{"label":"C","bowlCodes":["https://vyt.to/x1","https://vyt.to/x1"]}]}]}`))

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Duplicates: 1}, res)
	active := store.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "https://vyt.to/x1", active[0].Code)
	assert.Equal(t, "C", active[0].Dish)
	assert.Equal(t, bowl.UnknownOperator, active[0].Operator)
	assert.Equal(t, bowl.Day(importTime), active[0].CreatedAt)
}

func TestApply_CompanyTree(t *testing.T) {
	data, err := os.ReadFile("testdata/companies.json")
	require.NoError(t, err)
	store := bowl.NewStore()

	res, err := newTestReconciler().Apply(store, data)

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 5, Rejected: 1, Duplicates: 1}, res)

	var codes []string
	for _, rec := range store.Active() {
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []string{
		"https://vyt.to/box1",
		"https://vyt.to/a1",
		"https://vyt.to/a2",
		"https://vyt.to/b1",
		"https://vytal.eu/g1",
	}, codes, "applied in traversal order")

	a1, ok := store.Find("https://vyt.to/a1")
	require.True(t, ok)
	assert.Equal(t, "Acme", a1.Company, "first occurrence wins")
}

func TestApply_IdempotentSecondImport(t *testing.T) {
	data, err := os.ReadFile("testdata/companies.json")
	require.NoError(t, err)
	store := bowl.NewStore()
	r := newTestReconciler()

	_, err = r.Apply(store, data)
	require.NoError(t, err)
	first := store.Snapshot()

	res, err := r.Apply(store, data)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 5, res.Updated)
	assert.Equal(t, 0, res.MovedFromPrepared)
	assert.Equal(t, first, store.Snapshot())
}

func TestApply_MovesPreparedBowls(t *testing.T) {
	store := bowl.NewStore()
	prepTime := importTime.Add(-5 * time.Hour)
	store.Prepare("https://vyt.to/p1", "B", "Hamid", prepTime)
	store.Prepare("https://vyt.to/p2", "A", "Richa", prepTime)

	res, err := newTestReconciler().Apply(store, []byte(`[
		{"name": "Acme", "dishes": [{"bowlCodes": ["https://vyt.to/p1"]}]},
		{"code": "https://vyt.to/new"}
	]`))

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, MovedFromPrepared: 1}, res)

	p1, ok := store.Find("https://vyt.to/p1")
	require.True(t, ok)
	assert.Equal(t, bowl.StatusActive, p1.Status)
	assert.Equal(t, "Acme", p1.Company)
	assert.Equal(t, "B", p1.Dish, "dish carried forward from Prepared")
	assert.Equal(t, "Hamid", p1.Operator)
	assert.Equal(t, prepTime, p1.CreatedAt)

	require.Len(t, store.Prepared(), 1)
	assert.Equal(t, "https://vyt.to/p2", store.Prepared()[0].Code)
}

func TestApply_AllOrNothingGates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  bowl.ErrorCode
	}{
		{"blank", "  \n ", bowl.CodeEmptyInput},
		{"malformed", `{"boxes": [`, bowl.CodeManifestParse},
		{"no codes", `{"boxes": []}`, bowl.CodeNoCodesFound},
		{"only bare tokens", `{"codes": ["abc123456", "VYT.TO/x"]}`, bowl.CodeNoCodesFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := bowl.NewStore()
			store.Prepare("https://vyt.to/p1", "B", "Hamid", importTime)
			before := store.Snapshot()

			_, err := newTestReconciler().Apply(store, []byte(tt.input))

			require.Error(t, err)
			assert.Equal(t, tt.code, bowl.CodeOf(err))
			assert.Equal(t, before, store.Snapshot())
		})
	}
}

func TestApply_NoCodesReportsRejected(t *testing.T) {
	res, err := newTestReconciler().Apply(bowl.NewStore(), []byte(`{"codes": ["abc123456", "def"]}`))

	assert.ErrorIs(t, err, bowl.ErrNoCodesFound)
	assert.Equal(t, 2, res.Rejected)
}

func TestReconciler_CustomPrefixes(t *testing.T) {
	r := newTestReconciler(WithPrefixes([]string{"https://bowls.example/"}))

	assert.True(t, r.Accepts("https://bowls.example/1"))
	assert.False(t, r.Accepts("https://vyt.to/1"))

	plan, err := r.Plan([]byte(`{"codes": ["https://vyt.to/1", "https://bowls.example/1"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bowls.example/1"}, codesOf(plan.Entries))
	assert.Len(t, plan.Rejected, 1)
}

func TestReconciler_DefaultPrefixesAreCaseSensitive(t *testing.T) {
	r := NewReconciler()

	assert.True(t, r.Accepts("https://vyt.to/abc"))
	assert.True(t, r.Accepts("http://vytal.eu/abc"))
	assert.False(t, r.Accepts("HTTPS://VYT.TO/abc"))
	assert.False(t, r.Accepts("vyt.to/abc"))
}
