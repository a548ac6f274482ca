package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/bundlekit/api"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLookup_HitRequiresPathAndModTime(t *testing.T) {
	store, err := Open(t.TempDir(), api.Development)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	mod := api.CompiledModule{
		Name:       "Data.Util",
		SourcePath: "src/Data/Util.purs",
		Generated:  []byte("exports.id = function(x) { return x; };"),
		Foreign:    []byte("exports.now = Date.now;"),
	}
	require.NoError(t, store.Put(mod, baseTime))

	got, err := store.Lookup("Data.Util", "src/Data/Util.purs", baseTime)
	require.NoError(t, err)
	assert.Equal(t, mod.Generated, got.Generated)
	assert.Equal(t, mod.Foreign, got.Foreign)

	_, err = store.Lookup("Data.Util", "src/Data/Util.purs", baseTime.Add(time.Second))
	assert.ErrorIs(t, err, ErrMiss, "newer mtime must miss")

	_, err = store.Lookup("Data.Util", "moved/Util.purs", baseTime)
	assert.ErrorIs(t, err, ErrMiss, "different source path must miss")

	_, err = store.Lookup("Data.Other", "src/Data/Util.purs", baseTime)
	assert.ErrorIs(t, err, ErrMiss, "unknown module must miss")
}

func TestPut_OverwritesPriorEntry(t *testing.T) {
	store, err := Open(t.TempDir(), api.Development)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Put(api.CompiledModule{
		Name: "Main", SourcePath: "src/Main.purs", Generated: []byte("v1"),
	}, baseTime))
	require.NoError(t, store.Put(api.CompiledModule{
		Name: "Main", SourcePath: "src/Main.purs", Generated: []byte("v2"),
	}, baseTime.Add(time.Minute)))

	got, err := store.Lookup("Main", "src/Main.purs", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Generated)

	_, err = store.Lookup("Main", "src/Main.purs", baseTime)
	assert.ErrorIs(t, err, ErrMiss, "old entry must be gone")
}

func TestInjectedModulesRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir(), api.Development)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Put(api.CompiledModule{
		Name: "Prelude", Generated: []byte("exports.unit = {};"),
	}, time.Time{}))
	require.NoError(t, store.Put(api.CompiledModule{
		Name: "Main", SourcePath: "src/Main.purs", Generated: []byte("code"),
	}, baseTime))

	injected, err := store.Injected()
	require.NoError(t, err)
	require.Len(t, injected, 1, "only sourceless modules are injected")
	assert.Equal(t, api.ModuleName("Prelude"), injected[0].Name)
	assert.Equal(t, []byte("exports.unit = {};"), injected[0].Generated)

	_, err = store.Lookup("Prelude", "src/Prelude.purs", baseTime)
	assert.ErrorIs(t, err, ErrMiss, "injected entries never satisfy a source lookup")

	require.NoError(t, store.DropInjected())
	injected, err = store.Injected()
	require.NoError(t, err)
	assert.Empty(t, injected)

	_, err = store.Lookup("Main", "src/Main.purs", baseTime)
	assert.NoError(t, err, "dropping injected entries must not touch real ones")
}

func TestDevelopmentCacheSurvivesReopen(t *testing.T) {
	root := t.TempDir()

	store, err := Open(root, api.Development)
	require.NoError(t, err)
	require.NoError(t, store.Put(api.CompiledModule{
		Name: "Main", SourcePath: "src/Main.purs", Generated: []byte("code"),
	}, baseTime))
	require.NoError(t, store.Close())

	store, err = Open(root, api.Development)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Lookup("Main", "src/Main.purs", baseTime)
	assert.NoError(t, err)
}

func TestProductionCacheWipedOnOpen(t *testing.T) {
	root := t.TempDir()

	store, err := Open(root, api.Production)
	require.NoError(t, err)
	require.NoError(t, store.Put(api.CompiledModule{
		Name: "Main", SourcePath: "src/Main.purs", Generated: []byte("code"),
	}, baseTime))
	require.NoError(t, store.Close())

	store, err = Open(root, api.Production)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Lookup("Main", "src/Main.purs", baseTime)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestModesUseDisjointStorage(t *testing.T) {
	root := t.TempDir()

	dev, err := Open(root, api.Development)
	require.NoError(t, err)
	defer func() { _ = dev.Close() }()
	require.NoError(t, dev.Put(api.CompiledModule{
		Name: "Main", SourcePath: "src/Main.purs", Generated: []byte("dev"),
	}, baseTime))

	prod, err := Open(root, api.Production)
	require.NoError(t, err)
	defer func() { _ = prod.Close() }()

	_, err = prod.Lookup("Main", "src/Main.purs", baseTime)
	assert.ErrorIs(t, err, ErrMiss, "production must never see development entries")

	_, err = dev.Lookup("Main", "src/Main.purs", baseTime)
	assert.NoError(t, err, "development entries survive a production build")

	assert.NotEqual(t, dev.Dir(), prod.Dir())
}

func TestOpen_FailsWhenRootIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "cache-root")
	require.NoError(t, os.WriteFile(blocked, []byte("in the way"), 0o644))

	_, err := Open(blocked, api.Production)
	require.Error(t, err)

	var be *api.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, api.KindCache, be.Kind)
}
