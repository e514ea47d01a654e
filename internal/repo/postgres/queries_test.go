package postgres

import (
	"strings"
	"testing"
)

func TestRunQueriesScopedByRunID(t *testing.T) {
	for name, query := range map[string]string{
		"update status":            updateRunStatusQuery,
		"update status with error": updateRunStatusWithErrorQuery,
		"update last polled":       updateRunLastPolledQuery,
	} {
		if !strings.Contains(query, "WHERE run_id = $") {
			t.Fatalf("%s: expected run_id predicate", name)
		}
	}
	if !strings.Contains(selectRunQuery, "JOIN run_sets rs ON rs.run_set_id = r.run_set_id") {
		t.Fatalf("expected run set join in select run query")
	}
}

func TestRunStatusUpdatesAdvanceBothTimestamps(t *testing.T) {
	for _, query := range []string{updateRunStatusQuery, updateRunStatusWithErrorQuery} {
		if !strings.Contains(query, "last_modified_timestamp = $2, last_polled_timestamp = $2") {
			t.Fatalf("expected modified and polled timestamps to share one value: %s", query)
		}
	}
	if strings.Contains(updateRunLastPolledQuery, "status") {
		t.Fatalf("last polled update must not touch status")
	}
	if strings.Contains(updateRunStatusQuery, "error_messages") {
		t.Fatalf("plain status update must not touch error text")
	}
}

func TestTerminalStatusListMatchesSummaryCounters(t *testing.T) {
	if !strings.Contains(runSetSummaryColumns, terminalStatusList) {
		t.Fatalf("expected summary terminal counter to use %s", terminalStatusList)
	}
}

func TestLastRunSetUpdatesScopedByVersion(t *testing.T) {
	if !strings.Contains(setMethodVersionLastRunSetQuery, "WHERE method_version_id = $3") {
		t.Fatalf("expected method_version_id predicate")
	}
	if !strings.Contains(setMethodLastRunSetQuery, "WHERE method_version_id = $3") {
		t.Fatalf("expected method lookup through method_version_id")
	}
}

func TestSchemaDeclaresTables(t *testing.T) {
	for _, table := range []string{"methods", "method_versions", "run_sets", "runs", "audit_events"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("expected table %s in schema", table)
		}
	}
}
