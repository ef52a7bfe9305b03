package idv

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/transition-cli/internal/model"
)

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func chainCorpus() []model.ContractVehicle {
	return []model.ContractVehicle{
		{PIID: "IDV-1", VendorID: "v1", StartDate: day(2022, 1, 1), ObligatedUSD: 100},
		{PIID: "ORD-1", ParentPIID: "IDV-1", VendorID: "v1", StartDate: day(2022, 3, 1), ObligatedUSD: 200},
		{PIID: "ORD-2", ParentPIID: "IDV-1", VendorID: "v1", StartDate: day(2022, 6, 1), ObligatedUSD: 300},
		{PIID: "MOD-1", ParentPIID: "ORD-2", VendorID: "v1", StartDate: day(2022, 9, 1), ObligatedUSD: 50},
		{PIID: "LONE", VendorID: "v2", StartDate: day(2022, 2, 1), ObligatedUSD: 400},
	}
}

func TestAggregateRollsUpChain(t *testing.T) {
	tracker, errs := NewTracker(chainCorpus())
	require.Empty(t, errs)

	agg, err := tracker.Aggregate("IDV-1")
	require.NoError(t, err)

	assert.Equal(t, "IDV-1", agg.RootPIID)
	assert.Equal(t, 650.0, agg.TotalValue)
	assert.Equal(t, 3, agg.ChildCount, "root is not counted as a child")
	assert.Equal(t, day(2022, 1, 1), agg.RootStart)
	assert.Equal(t, day(2022, 9, 1), agg.LastActionDate)
	assert.Equal(t, day(2022, 9, 1).Sub(day(2022, 1, 1)), agg.Duration())
}

func TestAggregateStandalone(t *testing.T) {
	tracker, errs := NewTracker(chainCorpus())
	require.Empty(t, errs)

	agg, err := tracker.Aggregate("LONE")
	require.NoError(t, err)
	assert.Equal(t, 400.0, agg.TotalValue)
	assert.Equal(t, 0, agg.ChildCount)
}

func TestAggregateUnknownRoot(t *testing.T) {
	tracker, _ := NewTracker(nil)
	_, err := tracker.Aggregate("NOPE")
	assert.Error(t, err)
}

func TestAggregateConcurrent(t *testing.T) {
	tracker, errs := NewTracker(chainCorpus())
	require.Empty(t, errs)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg, err := tracker.Aggregate("IDV-1")
			assert.NoError(t, err)
			assert.Equal(t, 650.0, agg.TotalValue)
		}()
	}
	wg.Wait()
}

func TestRootAndChainOf(t *testing.T) {
	tracker, errs := NewTracker(chainCorpus())
	require.Empty(t, errs)

	root, err := tracker.Root("MOD-1")
	require.NoError(t, err)
	assert.Equal(t, "IDV-1", root)

	chain, err := tracker.ChainOf("MOD-1")
	require.NoError(t, err)
	piids := make([]string, len(chain))
	for i, c := range chain {
		piids[i] = c.PIID
	}
	assert.Equal(t, []string{"IDV-1", "ORD-2", "MOD-1"}, piids)
}

func TestParentOutsideCorpusIsRoot(t *testing.T) {
	tracker, errs := NewTracker([]model.ContractVehicle{
		{PIID: "ORPHAN", ParentPIID: "GONE", VendorID: "v1", StartDate: day(2022, 1, 1), ObligatedUSD: 10},
	})
	require.Empty(t, errs)

	root, err := tracker.Root("ORPHAN")
	require.NoError(t, err)
	assert.Equal(t, "ORPHAN", root)
}

func TestCycleFlagsSubtreeOnly(t *testing.T) {
	corpus := []model.ContractVehicle{
		// cycle: A -> B -> A
		{PIID: "A", ParentPIID: "B", VendorID: "v1", StartDate: day(2022, 1, 1)},
		{PIID: "B", ParentPIID: "A", VendorID: "v1", StartDate: day(2022, 2, 1)},
		{PIID: "C", ParentPIID: "A", VendorID: "v1", StartDate: day(2022, 3, 1)},
		// healthy chain in the same corpus
		{PIID: "OK-ROOT", VendorID: "v1", StartDate: day(2022, 1, 1), ObligatedUSD: 5},
		{PIID: "OK-CHILD", ParentPIID: "OK-ROOT", VendorID: "v1", StartDate: day(2022, 4, 1), ObligatedUSD: 7},
	}

	tracker, errs := NewTracker(corpus)
	require.NotEmpty(t, errs)
	var chainErr *ChainIntegrityError
	assert.ErrorAs(t, errs[0], &chainErr)

	assert.True(t, tracker.Flagged("A"))
	assert.True(t, tracker.Flagged("B"))
	assert.True(t, tracker.Flagged("C"), "descendants of a cycle are excluded")
	assert.False(t, tracker.Flagged("OK-ROOT"))
	assert.False(t, tracker.Flagged("OK-CHILD"))

	_, err := tracker.Root("A")
	assert.ErrorAs(t, err, &chainErr)
	_, err = tracker.ChainOf("A")
	assert.ErrorAs(t, err, &chainErr)

	agg, err := tracker.Aggregate("OK-ROOT")
	require.NoError(t, err)
	assert.Equal(t, 12.0, agg.TotalValue)
	assert.Equal(t, 1, agg.ChildCount)
}
