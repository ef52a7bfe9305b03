package identity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/transition-cli/internal/model"
)

func ts(year int) time.Time {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestResolveKnownIdentifier(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddIdentifier(model.VendorIdentifier{
		Type: model.IDTypeUEI, Value: "ABC123", VendorID: "v1", RecordedAt: ts(2020),
	}))

	snap := b.Snapshot()

	id, minted, err := snap.Resolve(model.IDTypeUEI, "ABC123")
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Equal(t, "v1", id)
}

func TestResolveMintsUnknown(t *testing.T) {
	snap := NewBuilder().Snapshot()

	id1, minted, err := snap.Resolve(model.IDTypeUEI, "NEW999")
	require.NoError(t, err)
	assert.True(t, minted)
	assert.NotEmpty(t, id1)

	// stable within the snapshot
	id2, minted, err := snap.Resolve(model.IDTypeUEI, "NEW999")
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, snap.MintedCount())
}

func TestResolveMintConcurrent(t *testing.T) {
	snap := NewBuilder().Snapshot()

	const n = 32
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := snap.Resolve(model.IDTypeCAGE, "1XYZ9")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, snap.MintedCount())
}

func TestResolveInvalidInput(t *testing.T) {
	snap := NewBuilder().Snapshot()

	_, _, err := snap.Resolve(model.IDType("ein"), "x")
	assert.Error(t, err)

	_, _, err = snap.Resolve(model.IDTypeUEI, "")
	assert.Error(t, err)
}

func TestNovationLaterRecordWins(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddIdentifier(model.VendorIdentifier{
		Type: model.IDTypeDUNS, Value: "123456789", VendorID: "old", RecordedAt: ts(2019),
	}))
	require.NoError(t, b.AddIdentifier(model.VendorIdentifier{
		Type: model.IDTypeDUNS, Value: "123456789", VendorID: "new", RecordedAt: ts(2021),
	}))

	snap := b.Snapshot()

	id, _, err := snap.Resolve(model.IDTypeDUNS, "123456789")
	require.NoError(t, err)
	assert.Equal(t, "new", id)
}

func TestMergeEarlierCreatedWins(t *testing.T) {
	b := NewBuilder()
	b.AddVendor(model.Vendor{ID: "v-young", CreatedAt: ts(2022)})
	b.AddVendor(model.Vendor{ID: "v-old", CreatedAt: ts(2018)})
	require.NoError(t, b.AddIdentifier(model.VendorIdentifier{
		Type: model.IDTypeUEI, Value: "YOUNGUEI", VendorID: "v-young", RecordedAt: ts(2022),
	}))

	canon, err := b.Merge("v-young", "v-old")
	require.NoError(t, err)
	assert.Equal(t, "v-old", canon)

	snap := b.Snapshot()

	// identifiers of the absorbed vendor resolve to the canonical one
	id, _, err := snap.Resolve(model.IDTypeUEI, "YOUNGUEI")
	require.NoError(t, err)
	assert.Equal(t, "v-old", id)

	// the retired id keeps resolving forever
	got, err := snap.ResolveVendor("v-young")
	require.NoError(t, err)
	assert.Equal(t, "v-old", got)
}

func TestMergeLexicalTieBreak(t *testing.T) {
	b := NewBuilder()
	b.AddVendor(model.Vendor{ID: "v-b", CreatedAt: ts(2020)})
	b.AddVendor(model.Vendor{ID: "v-a", CreatedAt: ts(2020)})

	canon, err := b.Merge("v-b", "v-a")
	require.NoError(t, err)
	assert.Equal(t, "v-a", canon)
}

func TestMergeIdempotent(t *testing.T) {
	b := NewBuilder()
	b.AddVendor(model.Vendor{ID: "v1", CreatedAt: ts(2018)})
	b.AddVendor(model.Vendor{ID: "v2", CreatedAt: ts(2020)})

	c1, err := b.Merge("v1", "v2")
	require.NoError(t, err)
	version := b.version

	c2, err := b.Merge("v1", "v2")
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.Equal(t, version, b.version, "repeat merge must not bump the version")

	// merging through the alias is the same no-op
	c3, err := b.Merge("v2", "v1")
	require.NoError(t, err)
	assert.Equal(t, c1, c3)
}

func TestMergeTransitiveChain(t *testing.T) {
	b := NewBuilder()
	b.AddVendor(model.Vendor{ID: "v1", CreatedAt: ts(2016)})
	b.AddVendor(model.Vendor{ID: "v2", CreatedAt: ts(2018)})
	b.AddVendor(model.Vendor{ID: "v3", CreatedAt: ts(2020)})

	_, err := b.Merge("v2", "v3")
	require.NoError(t, err)
	canon, err := b.Merge("v1", "v3")
	require.NoError(t, err)
	assert.Equal(t, "v1", canon)

	snap := b.Snapshot()
	got, err := snap.ResolveVendor("v3")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestAliasCyclePoisonsOnlyAffectedVendor(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddIdentifier(model.VendorIdentifier{
		Type: model.IDTypeUEI, Value: "LOOPED", VendorID: "vc1", RecordedAt: ts(2020),
	}))
	require.NoError(t, b.AddIdentifier(model.VendorIdentifier{
		Type: model.IDTypeUEI, Value: "HEALTHY", VendorID: "vok", RecordedAt: ts(2020),
	}))

	// corrupt alias data forming vc1 -> vc2 -> vc1
	b.AddAlias(model.VendorAlias{FromID: "vc1", ToID: "vc2"})
	b.AddAlias(model.VendorAlias{FromID: "vc2", ToID: "vc1"})

	snap := b.Snapshot()

	_, _, err := snap.Resolve(model.IDTypeUEI, "LOOPED")
	var cycleErr *IdentityCycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Chain, "vc1")

	_, err = snap.ResolveVendor("vc1")
	assert.ErrorAs(t, err, &cycleErr)

	// the unrelated vendor is untouched
	id, _, err := snap.Resolve(model.IDTypeUEI, "HEALTHY")
	require.NoError(t, err)
	assert.Equal(t, "vok", id)

	assert.NotEmpty(t, snap.CycleErrors())
}

func TestSnapshotVersionTracksMerges(t *testing.T) {
	b := NewBuilder()
	b.AddVendor(model.Vendor{ID: "v1", CreatedAt: ts(2018)})
	b.AddVendor(model.Vendor{ID: "v2", CreatedAt: ts(2020)})

	before := b.Snapshot()
	_, err := b.Merge("v1", "v2")
	require.NoError(t, err)
	after := b.Snapshot()

	assert.Greater(t, after.Version(), before.Version())
}
