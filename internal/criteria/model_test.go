package criteria

import (
	"reflect"
	"testing"
)

func TestAppliesToAllMatchesEverything(t *testing.T) {
	scope := All()
	if !scope.Matches("technical") || !scope.Matches("legal") {
		t.Fatal("All scope should match any bucket")
	}
	got := scope.Resolve([]string{"technical", "legal"})
	if !reflect.DeepEqual(got, []string{"technical", "legal"}) {
		t.Fatalf("Resolve = %v", got)
	}
}

func TestAppliesToBucketsMatchesOnlyListed(t *testing.T) {
	scope := Buckets("technical")
	if !scope.Matches("technical") {
		t.Fatal("expected match on listed bucket")
	}
	if scope.Matches("legal") {
		t.Fatal("unexpected match on unlisted bucket")
	}
}

func TestAppliesToResolveDropsAbsentBuckets(t *testing.T) {
	scope := Buckets("technical", "financial")
	got := scope.Resolve([]string{"technical", "legal"})
	if !reflect.DeepEqual(got, []string{"technical"}) {
		t.Fatalf("Resolve = %v, want only buckets present on the assessment", got)
	}
}

func TestAppliesToZeroValueMatchesNothing(t *testing.T) {
	var scope AppliesTo
	if scope.Matches("technical") {
		t.Fatal("zero scope should match nothing")
	}
	if got := scope.Resolve([]string{"technical"}); len(got) != 0 {
		t.Fatalf("Resolve = %v, want empty", got)
	}
}
