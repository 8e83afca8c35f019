package cache

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func post(id string) Ref { return Ref{Typename: "Post", ID: id} }

func TestMergePageAppendsDedupedOnLaterPages(t *testing.T) {
	existing := &Page{Items: []any{post("1"), post("2")}, Cursor: "c1", HasMore: true}
	incoming := Page{Items: []any{post("2"), post("3")}, Cursor: "c2", HasMore: false}

	got := MergePage(existing, incoming, PageArgs{Offset: 2}, AppendDeduped)
	want := Page{Items: []any{post("1"), post("2"), post("3")}, Cursor: "c2", HasMore: false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged page mismatch (-want +got):\n%s", diff)
	}
	if len(existing.Items) != 2 {
		t.Fatalf("existing page modified: %v", existing.Items)
	}
}

func TestMergePageFirstPageReplaces(t *testing.T) {
	existing := &Page{Items: []any{post("1"), post("2"), post("3")}}
	incoming := Page{Items: []any{post("9")}, HasMore: true}

	got := MergePage(existing, incoming, PageArgs{}, AppendDeduped)
	if diff := cmp.Diff([]any{post("9")}, got.Items); diff != "" {
		t.Fatalf("first page should replace (-want +got):\n%s", diff)
	}
	if !got.HasMore {
		t.Fatal("expected has_more from incoming page")
	}
}

func TestMergePageReplaceStrategy(t *testing.T) {
	existing := &Page{Items: []any{post("1")}}
	got := MergePage(existing, Page{Items: []any{post("2")}}, PageArgs{Offset: 10}, Replace)
	if diff := cmp.Diff([]any{post("2")}, got.Items); diff != "" {
		t.Fatalf("replace mismatch (-want +got):\n%s", diff)
	}
}

func TestMergePageSeedsWithoutExisting(t *testing.T) {
	got := MergePage(nil, Page{Items: []any{post("4")}, Cursor: "c"}, PageArgs{Cursor: "prev"}, AppendDeduped)
	if len(got.Items) != 1 || got.Cursor != "c" {
		t.Fatalf("seed page = %+v", got)
	}
}

func TestMergePageIsDeterministic(t *testing.T) {
	existing := &Page{Items: []any{post("1"), "tag", float64(3)}}
	incoming := Page{Items: []any{"tag", post("1"), post("5")}}
	first := MergePage(existing, incoming, PageArgs{Offset: 3}, AppendDeduped)
	second := MergePage(existing, incoming, PageArgs{Offset: 3}, AppendDeduped)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("merge not deterministic:\n%s", diff)
	}
	want := []any{post("1"), "tag", float64(3), post("5")}
	if diff := cmp.Diff(want, first.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeFieldStrategies(t *testing.T) {
	got := mergeField(FieldwiseLatestWins,
		map[string]any{"a": 1, "b": 2}, true,
		map[string]any{"b": 3, "c": 4})
	if diff := cmp.Diff(map[string]any{"a": 1, "b": 3, "c": 4}, got); diff != "" {
		t.Fatalf("fieldwise mismatch (-want +got):\n%s", diff)
	}

	got = mergeField(AppendDeduped, []any{"x", "y"}, true, []any{"y", "z"})
	if diff := cmp.Diff([]any{"x", "y", "z"}, got); diff != "" {
		t.Fatalf("append mismatch (-want +got):\n%s", diff)
	}

	got = mergeField(Replace, "old", true, "new")
	if got != "new" {
		t.Fatalf("replace = %v", got)
	}
}

func TestPageArgsFrom(t *testing.T) {
	if !PageArgsFrom(map[string]any{"limit": 10}).FirstPage() {
		t.Fatal("limit alone should be the first page")
	}
	args := PageArgsFrom(map[string]any{"offset": float64(20), "limit": 10})
	if args.Offset != 20 || args.Limit != 10 || args.FirstPage() {
		t.Fatalf("args = %+v", args)
	}
	args = PageArgsFrom(map[string]any{"after": "abc"})
	if args.Cursor != "abc" || args.FirstPage() {
		t.Fatalf("args = %+v", args)
	}
}
