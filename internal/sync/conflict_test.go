package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConflict(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	tests := []struct {
		name   string
		local  *Record
		remote *Record
		want   bool
	}{
		{
			name:   "dirty local newer than remote",
			local:  localRecord("a", "c1", base.Add(time.Minute), true),
			remote: remoteRecord("a", "c1", base),
			want:   true,
		},
		{
			name:   "clean local never conflicts",
			local:  localRecord("a", "c1", base.Add(time.Minute), false),
			remote: remoteRecord("a", "c1", base),
			want:   false,
		},
		{
			name:   "dirty local but remote newer",
			local:  localRecord("a", "c1", base, true),
			remote: remoteRecord("a", "c1", base.Add(time.Minute)),
			want:   false,
		},
		{
			name:   "equal timestamps",
			local:  localRecord("a", "c1", base, true),
			remote: remoteRecord("a", "c1", base),
			want:   false,
		},
		{
			name:   "nil local",
			local:  nil,
			remote: remoteRecord("a", "c1", base),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.DetectConflict(tt.local, tt.remote))
		})
	}
}

func TestResolveRemoteWins(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	local := localRecord("a", "c1", base.Add(time.Minute), true)
	remote := remoteRecord("a", "c1", base)

	resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyRemoteWins})
	require.NoError(t, err)
	assert.Equal(t, ResolutionRemoteWins, resolved.Resolution)
	assert.Equal(t, remote.Fields, resolved.Record.Fields)
	assert.False(t, resolved.Record.Dirty)
}

func TestResolveLocalWins(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	local := localRecord("a", "c1", base.Add(time.Minute), true)
	remote := remoteRecord("a", "c1", base)

	resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyLocalWins})
	require.NoError(t, err)
	assert.Equal(t, ResolutionLocalWins, resolved.Resolution)
	assert.Equal(t, local.Fields, resolved.Record.Fields)
	assert.True(t, resolved.Record.Dirty, "kept local value awaits a future push")
}

func TestResolveLatestWins(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	t.Run("local newer keeps local", func(t *testing.T) {
		local := localRecord("a", "c1", base.Add(time.Minute), true)
		remote := remoteRecord("a", "c1", base)

		resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyLatestWins})
		require.NoError(t, err)
		assert.Equal(t, ResolutionLocalWins, resolved.Resolution)
		assert.Equal(t, local.Fields, resolved.Record.Fields)
	})

	t.Run("remote newer takes remote", func(t *testing.T) {
		local := localRecord("a", "c1", base, true)
		remote := remoteRecord("a", "c1", base.Add(time.Minute))

		resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyLatestWins})
		require.NoError(t, err)
		assert.Equal(t, ResolutionRemoteWins, resolved.Resolution)
		assert.Equal(t, remote.Fields, resolved.Record.Fields)
	})

	t.Run("equal timestamps take remote", func(t *testing.T) {
		local := localRecord("a", "c1", base, true)
		remote := remoteRecord("a", "c1", base)

		resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyLatestWins})
		require.NoError(t, err)
		assert.Equal(t, ResolutionRemoteWins, resolved.Resolution)
	})
}

func TestResolveMerge(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	local := &Record{
		ID:           "a",
		CollectionID: "c1",
		Fields: map[string]any{
			"title": "local title",
			"notes": "local notes",
			"tags":  []any{"x", "y"},
		},
		LastModified: base.Add(time.Minute),
		Dirty:        true,
	}
	remote := &Record{
		ID:           "a",
		CollectionID: "c1",
		Fields: map[string]any{
			"title": "remote title",
			"notes": "remote notes",
			"tags":  []any{"y", "z"},
		},
		LastModified: base,
	}

	rules := &MergeRules{
		PreferLocal: []string{"title"},
		Combine:     map[string]FieldCombiner{"tags": combineUnion},
	}

	resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyMerge, MergeRules: rules})
	require.NoError(t, err)
	require.Equal(t, ResolutionMerged, resolved.Resolution)
	assert.Empty(t, resolved.Errs)

	merged := resolved.Record
	assert.Equal(t, "local title", merged.Fields["title"])
	assert.Equal(t, "remote notes", merged.Fields["notes"], "uncovered fields take the remote value")
	assert.Equal(t, []any{"x", "y", "z"}, merged.Fields["tags"])
	assert.True(t, merged.LastModified.Equal(local.LastModified), "merged record carries the later timestamp")
	assert.True(t, merged.Dirty, "merged value needs a push")
}

func TestCombineUnionObjectElements(t *testing.T) {
	local := []any{
		map[string]any{"name": "alpha", "count": float64(1)},
		map[string]any{"name": "beta"},
	}
	remote := []any{
		map[string]any{"name": "alpha", "count": float64(1)},
		map[string]any{"name": "gamma"},
		[]any{"nested", float64(2)},
	}

	v, err := combineUnion(local, remote)
	require.NoError(t, err)
	merged, ok := v.([]any)
	require.True(t, ok)
	assert.Equal(t, []any{
		map[string]any{"name": "alpha", "count": float64(1)},
		map[string]any{"name": "beta"},
		map[string]any{"name": "gamma"},
		[]any{"nested", float64(2)},
	}, merged)
}

func TestResolveMergeObjectListField(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	local := &Record{
		ID:           "a",
		CollectionID: "c1",
		Fields: map[string]any{
			"tags": []any{map[string]any{"label": "urgent"}},
		},
		LastModified: base.Add(time.Minute),
		Dirty:        true,
	}
	remote := &Record{
		ID:           "a",
		CollectionID: "c1",
		Fields: map[string]any{
			"tags": []any{
				map[string]any{"label": "urgent"},
				map[string]any{"label": "archived"},
			},
		},
		LastModified: base,
	}

	rules := &MergeRules{Combine: map[string]FieldCombiner{"tags": combineUnion}}

	resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyMerge, MergeRules: rules})
	require.NoError(t, err)
	require.Equal(t, ResolutionMerged, resolved.Resolution)
	assert.Empty(t, resolved.Errs)
	assert.Equal(t, []any{
		map[string]any{"label": "urgent"},
		map[string]any{"label": "archived"},
	}, resolved.Record.Fields["tags"])
}

func TestResolveMergeCombinerFailureDefers(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()

	local := &Record{
		ID:           "a",
		Fields:       map[string]any{"tags": "not-a-list"},
		LastModified: base.Add(time.Minute),
		Dirty:        true,
	}
	remote := &Record{
		ID:           "a",
		Fields:       map[string]any{"tags": []any{"z"}},
		LastModified: base,
	}

	rules := &MergeRules{Combine: map[string]FieldCombiner{"tags": combineUnion}}

	resolved, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyMerge, MergeRules: rules})
	require.NoError(t, err)
	assert.Equal(t, ResolutionDeferred, resolved.Resolution)
	require.Len(t, resolved.Errs, 1)

	var conflictErr *ConflictError
	require.ErrorAs(t, resolved.Errs[0], &conflictErr)
	assert.Equal(t, "tags", conflictErr.Field)

	assert.Equal(t, local.Fields, resolved.Record.Fields, "deferred item keeps the local value")
	assert.True(t, resolved.Record.Dirty)
}

func TestResolveMisconfiguration(t *testing.T) {
	base := time.Now()
	resolver := NewConflictResolver()
	local := localRecord("a", "c1", base.Add(time.Minute), true)
	remote := remoteRecord("a", "c1", base)

	t.Run("merge without rules", func(t *testing.T) {
		_, err := resolver.Resolve(local, remote, &Strategy{Policy: PolicyMerge})
		var conflictErr *ConflictError
		require.ErrorAs(t, err, &conflictErr)
	})

	t.Run("unknown policy", func(t *testing.T) {
		_, err := resolver.Resolve(local, remote, &Strategy{Policy: ConflictPolicy("bogus")})
		var conflictErr *ConflictError
		require.ErrorAs(t, err, &conflictErr)
	})
}

func TestCombineConcat(t *testing.T) {
	v, err := combineConcat("one", "two")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", v)

	v, err = combineConcat("same", "same")
	require.NoError(t, err)
	assert.Equal(t, "same", v)

	_, err = combineConcat("str", 42)
	require.Error(t, err)
}

func TestLoadMergeRules(t *testing.T) {
	path := t.TempDir() + "/rules.yaml"
	content := []byte("prefer_local:\n  - title\nprefer_remote:\n  - owner\ncombine:\n  tags: union\n  notes: concat\n")
	require.NoError(t, writeFile(path, content))

	rules, err := LoadMergeRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, rules.PreferLocal)
	assert.Equal(t, []string{"owner"}, rules.PreferRemote)
	assert.Len(t, rules.Combine, 2)
}

func TestLoadMergeRulesUnknownCombinator(t *testing.T) {
	path := t.TempDir() + "/rules.yaml"
	require.NoError(t, writeFile(path, []byte("combine:\n  tags: nope\n")))

	_, err := LoadMergeRules(path)
	require.ErrorContains(t, err, "unknown combinator")
}
