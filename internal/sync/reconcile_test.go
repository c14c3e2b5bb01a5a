package sync

import (
	"reflect"
	"testing"

	"github.com/vac-tools/vacsync/pkg/models"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		catalog  []models.ChartRecord
		local    []models.LocalEntry
		expected []models.ChartStatus
	}{
		{
			name:    "empty local index yields missing",
			catalog: []models.ChartRecord{{OACI: "LFPG", City: "Paris", RemoteVersion: "v2"}},
			local:   nil,
			expected: []models.ChartStatus{
				{OACI: "LFPG", City: "Paris", RemoteVersion: "v2", State: models.StateMissing},
			},
		},
		{
			name:    "matching versions yield up to date",
			catalog: []models.ChartRecord{{OACI: "LFPG", City: "Paris", RemoteVersion: "v2"}},
			local:   []models.LocalEntry{{OACI: "LFPG", City: "Paris", LocalVersion: "v2", FilePath: "LFPG.pdf"}},
			expected: []models.ChartStatus{
				{OACI: "LFPG", City: "Paris", LocalVersion: "v2", RemoteVersion: "v2", FilePath: "LFPG.pdf", State: models.StateUpToDate},
			},
		},
		{
			name:    "remote version advanced yields stale",
			catalog: []models.ChartRecord{{OACI: "LFPG", City: "Paris", RemoteVersion: "v3"}},
			local:   []models.LocalEntry{{OACI: "LFPG", City: "Paris", LocalVersion: "v2", FilePath: "LFPG.pdf"}},
			expected: []models.ChartStatus{
				{OACI: "LFPG", City: "Paris", LocalVersion: "v2", RemoteVersion: "v3", FilePath: "LFPG.pdf", State: models.StateStale},
			},
		},
		{
			name: "output follows catalog order",
			catalog: []models.ChartRecord{
				{OACI: "LFPO", City: "Paris", RemoteVersion: "v1"},
				{OACI: "LFBD", City: "Bordeaux", RemoteVersion: "v1"},
				{OACI: "LFMN", City: "Nice", RemoteVersion: "v1"},
			},
			local: []models.LocalEntry{
				{OACI: "LFMN", City: "Nice", LocalVersion: "v1", FilePath: "LFMN.pdf"},
			},
			expected: []models.ChartStatus{
				{OACI: "LFPO", City: "Paris", RemoteVersion: "v1", State: models.StateMissing},
				{OACI: "LFBD", City: "Bordeaux", RemoteVersion: "v1", State: models.StateMissing},
				{OACI: "LFMN", City: "Nice", LocalVersion: "v1", RemoteVersion: "v1", FilePath: "LFMN.pdf", State: models.StateUpToDate},
			},
		},
		{
			name: "chart removed upstream is kept as orphaned",
			catalog: []models.ChartRecord{
				{OACI: "LFPG", City: "Paris", RemoteVersion: "v2"},
			},
			local: []models.LocalEntry{
				{OACI: "LFPG", City: "Paris", LocalVersion: "v2", FilePath: "LFPG.pdf"},
				{OACI: "LFXX", City: "Gone", LocalVersion: "v1", FilePath: "LFXX.pdf"},
			},
			expected: []models.ChartStatus{
				{OACI: "LFPG", City: "Paris", LocalVersion: "v2", RemoteVersion: "v2", FilePath: "LFPG.pdf", State: models.StateUpToDate},
				{OACI: "LFXX", City: "Gone", LocalVersion: "v1", FilePath: "LFXX.pdf", State: models.StateUpToDate, Orphaned: true},
			},
		},
		{
			name: "duplicate catalog entries keep first occurrence",
			catalog: []models.ChartRecord{
				{OACI: "LFPG", City: "Paris", RemoteVersion: "v2"},
				{OACI: "LFPG", City: "Paris again", RemoteVersion: "v9"},
			},
			local: nil,
			expected: []models.ChartStatus{
				{OACI: "LFPG", City: "Paris", RemoteVersion: "v2", State: models.StateMissing},
			},
		},
		{
			name:     "empty inputs yield empty mapping",
			catalog:  nil,
			local:    nil,
			expected: []models.ChartStatus{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Reconcile(tt.catalog, tt.local)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Reconcile() = %#v; want %#v", result, tt.expected)
			}
		})
	}
}

func TestReconcileDeterministic(t *testing.T) {
	catalog := []models.ChartRecord{
		{OACI: "LFPG", City: "Paris", RemoteVersion: "v2"},
		{OACI: "LFBD", City: "Bordeaux", RemoteVersion: "v1"},
	}
	local := []models.LocalEntry{
		{OACI: "LFBD", City: "Bordeaux", LocalVersion: "v1", FilePath: "LFBD.pdf"},
		{OACI: "LFOLD", City: "Old", LocalVersion: "v1", FilePath: "LFOLD.pdf"},
	}

	first := Reconcile(catalog, local)
	for i := 0; i < 10; i++ {
		if got := Reconcile(catalog, local); !reflect.DeepEqual(got, first) {
			t.Fatalf("Reconcile not deterministic: run %d = %#v; want %#v", i, got, first)
		}
	}
}
