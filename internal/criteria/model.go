package criteria

import "time"

// AppliesTo is the bucket scope of a criterion: either every bucket in the
// workflow or an explicit set. The zero value applies to nothing; construct
// via All or Buckets.
type AppliesTo struct {
	all     bool
	buckets []string
}

// All returns a scope covering every bucket.
func All() AppliesTo {
	return AppliesTo{all: true}
}

// Buckets returns a scope covering only the given bucket IDs.
func Buckets(ids ...string) AppliesTo {
	out := make([]string, len(ids))
	copy(out, ids)
	return AppliesTo{buckets: out}
}

// IsAll reports whether the scope covers every bucket.
func (a AppliesTo) IsAll() bool { return a.all }

// BucketIDs returns the explicit bucket set; empty when IsAll.
func (a AppliesTo) BucketIDs() []string {
	out := make([]string, len(a.buckets))
	copy(out, a.buckets)
	return out
}

// Matches reports whether the scope covers the given bucket.
func (a AppliesTo) Matches(bucketID string) bool {
	if a.all {
		return true
	}
	for _, id := range a.buckets {
		if id == bucketID {
			return true
		}
	}
	return false
}

// Resolve expands the scope to a concrete bucket set given the buckets
// present on an assessment. Resolution happens once at job assembly; the
// evaluator only ever sees concrete sets.
func (a AppliesTo) Resolve(assessmentBuckets []string) []string {
	if a.all {
		out := make([]string, len(assessmentBuckets))
		copy(out, assessmentBuckets)
		return out
	}
	var out []string
	for _, id := range a.buckets {
		for _, present := range assessmentBuckets {
			if id == present {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// CriterionSpec is a single named validation rule scoped to one or all
// document buckets within a workflow.
type CriterionSpec struct {
	ID          string
	TenantID    string
	WorkflowID  string
	Name        string
	Description string
	AppliesTo   AppliesTo
	CreatedAt   time.Time
}
