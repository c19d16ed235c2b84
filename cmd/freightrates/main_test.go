package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bher20/freightrates/internal/rates"
)

func TestQuoteCmd_PrintsEstimate(t *testing.T) {
	t.Setenv("FREIGHTRATES_DB_DRIVER", "memory")
	t.Setenv("FREIGHTRATES_UPSTREAM_URL", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"quote", "Shanghai", "Los Angeles", "--mode", "sea"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var q rates.Quote
	if err := json.Unmarshal(out.Bytes(), &q); err != nil {
		t.Fatalf("decode output: %v (%s)", err, out.String())
	}
	if q.Provenance != rates.ProvenanceEstimated || q.Origin != "SHANGHAI" {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestQuoteCmd_RejectsUnknownMode(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"quote", "A", "B", "--mode", "rail"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestEntitlementsCmd_GrantAndCheck(t *testing.T) {
	t.Setenv("FREIGHTRATES_DB_DRIVER", "sqlite")
	t.Setenv("FREIGHTRATES_DB_DSN", t.TempDir()+"/rates.db")

	exec := func(args ...string) string {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	if got := exec("entitlements", "check", "carol"); got != "false\n" {
		t.Fatalf("expected false before grant, got %q", got)
	}
	exec("entitlements", "grant", "carol")
	if got := exec("entitlements", "check", "carol"); got != "true\n" {
		t.Fatalf("expected true after grant, got %q", got)
	}
	exec("entitlements", "revoke", "carol")
	if got := exec("entitlements", "check", "carol"); got != "false\n" {
		t.Fatalf("expected false after revoke, got %q", got)
	}
}

func TestEntitlementsCmd_RejectsNonDurableDriver(t *testing.T) {
	for _, drv := range []string{"memory", "none"} {
		t.Setenv("FREIGHTRATES_DB_DRIVER", drv)

		for _, sub := range []string{"grant", "revoke", "check"} {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{"entitlements", sub, "dave"})
			err := root.Execute()
			if err == nil || !strings.Contains(err.Error(), "does not persist") {
				t.Fatalf("%s with driver %s: expected persistence error, got %v", sub, drv, err)
			}
			if out.Len() != 0 {
				t.Errorf("%s with driver %s printed %q", sub, drv, out.String())
			}
		}
	}
}
