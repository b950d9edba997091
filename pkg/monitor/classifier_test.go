package monitor

import (
	"testing"

	"github.com/saasguard/o365-monitor/pkg/graph"
)

func TestClassify_Delete(t *testing.T) {
	item := deletedItem("f1")
	if got := Classify(&item); got != EventDelete {
		t.Errorf("Expected EventDelete, got %v", got)
	}
}

func TestClassify_DeletedFolderIsDelete(t *testing.T) {
	// The deleted facet wins over the folder facet.
	item := graph.DriveItem{
		ID:      "d1",
		Folder:  &graph.FolderMetadata{},
		Deleted: &graph.DeletedMetadata{State: "deleted"},
	}
	if got := Classify(&item); got != EventDelete {
		t.Errorf("Expected EventDelete for deleted folder, got %v", got)
	}
}

func TestClassify_FolderIgnored(t *testing.T) {
	item := folderItem("dir")
	if got := Classify(&item); got != EventIgnored {
		t.Errorf("Expected EventIgnored, got %v", got)
	}
}

func TestClassify_EqualTimestampsIsUpload(t *testing.T) {
	ts := "2026-03-01T10:00:00Z"
	item := fileItem("f1", ts, ts)
	if got := Classify(&item); got != EventUpload {
		t.Errorf("Expected EventUpload, got %v", got)
	}
}

func TestClassify_DifferentTimestampsIsChange(t *testing.T) {
	item := fileItem("f1", "2026-03-01T10:00:00Z", "2026-03-01T10:00:01Z")
	if got := Classify(&item); got != EventChange {
		t.Errorf("Expected EventChange, got %v", got)
	}
}

func TestClassify_EqualInstantDifferentZoneIsUpload(t *testing.T) {
	// Same instant expressed in different offsets still compares equal.
	item := fileItem("f1", "2026-03-01T10:00:00Z", "2026-03-01T11:00:00+01:00")
	if got := Classify(&item); got != EventUpload {
		t.Errorf("Expected EventUpload for equal instants, got %v", got)
	}
}

func TestClassify_MissingTimestamps(t *testing.T) {
	cases := []struct {
		name     string
		created  string
		modified string
	}{
		{"both missing", "", ""},
		{"created missing", "", "2026-03-01T10:00:00Z"},
		{"modified missing", "2026-03-01T10:00:00Z", ""},
		{"created malformed", "yesterday", "2026-03-01T10:00:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := fileItem("f1", tc.created, tc.modified)
			if got := Classify(&item); got != EventUnknown {
				t.Errorf("Expected EventUnknown, got %v", got)
			}
		})
	}
}
