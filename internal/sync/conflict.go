package sync

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// FieldCombiner merges one field's local and remote values.
type FieldCombiner func(local, remote any) (any, error)

// MergeRules drive the field-level merge policy: PreferLocal fields keep the
// local value, PreferRemote fields take the remote value, Combine fields go
// through an explicit combinator. Fields covered by no rule take the remote
// value.
type MergeRules struct {
	PreferLocal  []string
	PreferRemote []string
	Combine      map[string]FieldCombiner
}

type mergeRulesFile struct {
	PreferLocal  []string          `yaml:"prefer_local"`
	PreferRemote []string          `yaml:"prefer_remote"`
	Combine      map[string]string `yaml:"combine"`
}

// LoadMergeRules reads merge rules from a YAML file. Combinators are named
// built-ins: "union" (lists, deduplicated), "concat" (strings).
func LoadMergeRules(path string) (*MergeRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read merge rules: %w", err)
	}

	var file mergeRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse merge rules: %w", err)
	}

	rules := &MergeRules{
		PreferLocal:  file.PreferLocal,
		PreferRemote: file.PreferRemote,
	}
	if len(file.Combine) > 0 {
		rules.Combine = make(map[string]FieldCombiner, len(file.Combine))
		for field, name := range file.Combine {
			combiner, ok := builtinCombiners[name]
			if !ok {
				return nil, fmt.Errorf("merge rules: unknown combinator %q for field %q", name, field)
			}
			rules.Combine[field] = combiner
		}
	}
	return rules, nil
}

var builtinCombiners = map[string]FieldCombiner{
	"union":  combineUnion,
	"concat": combineConcat,
}

func combineUnion(local, remote any) (any, error) {
	localList, lok := local.([]any)
	remoteList, rok := remote.([]any)
	if !lok || !rok {
		return nil, fmt.Errorf("union: both values must be lists, got %T and %T", local, remote)
	}
	// Dedup on the serialized form: decoded list elements are often
	// map[string]any or nested []any, which cannot be map keys directly.
	seen := make(map[string]struct{}, len(localList)+len(remoteList))
	var out []any
	for _, v := range append(append([]any{}, localList...), remoteList...) {
		key, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("union: element %T is not serializable: %w", v, err)
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

func combineConcat(local, remote any) (any, error) {
	localStr, lok := local.(string)
	remoteStr, rok := remote.(string)
	if !lok || !rok {
		return nil, fmt.Errorf("concat: both values must be strings, got %T and %T", local, remote)
	}
	if localStr == remoteStr {
		return localStr, nil
	}
	return strings.TrimSpace(localStr + "\n" + remoteStr), nil
}

// Resolved is the outcome of resolving one conflicting item.
type Resolved struct {
	Record     *Record
	Resolution Resolution
	Errs       []*SyncError
}

// ConflictResolver decides whether a local and a remote item conflict, and
// resolves per policy when they do.
type ConflictResolver struct{}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// DetectConflict reports a conflict only when the local item carries unsynced
// local edits and is newer than the remote item. Without pending local edits
// no conflict is possible: the remote update simply overwrites local state.
//
// This is a heuristic, not a causality check. No vector clocks or server-side
// ETags back it; the remote service's consistency model is unspecified, so
// the engine deliberately stays a best-effort reconciler.
func (cr *ConflictResolver) DetectConflict(local, remote *Record) bool {
	if local == nil || remote == nil {
		return false
	}
	return local.Dirty && local.LastModified.After(remote.LastModified)
}

// Resolve picks the surviving value for a conflicting item per policy. The
// returned error indicates policy misconfiguration; item-level combinator
// failures come back in Resolved.Errs with a deferred resolution instead.
func (cr *ConflictResolver) Resolve(local, remote *Record, strategy *Strategy) (*Resolved, error) {
	switch strategy.Policy {
	case PolicyRemoteWins:
		return cr.remoteWins(remote), nil

	case PolicyLocalWins:
		return cr.localWins(local), nil

	case PolicyLatestWins:
		if remote.LastModified.Before(local.LastModified) {
			return cr.localWins(local), nil
		}
		return cr.remoteWins(remote), nil

	case PolicyMerge:
		if strategy.MergeRules == nil {
			return nil, &ConflictError{ItemID: local.ID, Err: fmt.Errorf("merge policy without rules")}
		}
		return cr.merge(local, remote, strategy.MergeRules), nil

	default:
		return nil, &ConflictError{ItemID: local.ID, Err: fmt.Errorf("unknown conflict policy %q", strategy.Policy)}
	}
}

// remoteWins overwrites local fields from remote.
func (cr *ConflictResolver) remoteWins(remote *Record) *Resolved {
	return &Resolved{
		Record:     remote.Clone(),
		Resolution: ResolutionRemoteWins,
	}
}

// localWins keeps the local value and leaves it dirty for a future push.
func (cr *ConflictResolver) localWins(local *Record) *Resolved {
	record := local.Clone()
	record.Dirty = true
	return &Resolved{
		Record:     record,
		Resolution: ResolutionLocalWins,
	}
}

// merge builds the surviving record field by field, starting from the remote
// value. A failing combinator defers the item: the local value is kept and
// the failure is reported, never silently dropped.
func (cr *ConflictResolver) merge(local, remote *Record, rules *MergeRules) *Resolved {
	merged := remote.Clone()

	for _, field := range rules.PreferLocal {
		if v, ok := local.Fields[field]; ok {
			merged.Fields[field] = v
		}
	}

	var errs []*SyncError
	for field, combine := range rules.Combine {
		localVal, lok := local.Fields[field]
		remoteVal, rok := remote.Fields[field]
		if !lok || !rok {
			continue
		}
		v, err := combine(localVal, remoteVal)
		if err != nil {
			errs = append(errs, newSyncError(local.ID, OpConflict, &ConflictError{ItemID: local.ID, Field: field, Err: err}))
			continue
		}
		merged.Fields[field] = v
	}

	if len(errs) > 0 {
		// deferred: keep the local value until the rules are fixed
		deferred := local.Clone()
		deferred.Dirty = true
		return &Resolved{
			Record:     deferred,
			Resolution: ResolutionDeferred,
			Errs:       errs,
		}
	}

	if remote.LastModified.After(local.LastModified) {
		merged.LastModified = remote.LastModified
	} else {
		merged.LastModified = local.LastModified
	}
	// the merged value matches neither side, push it on the next replay
	merged.Dirty = true

	return &Resolved{
		Record:     merged,
		Resolution: ResolutionMerged,
	}
}
