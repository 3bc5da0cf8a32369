// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import "testing"

func TestSplitJoinKeyValueRoundTrip(t *testing.T) {
	k, v := splitKeyValue("FOO=bar=baz")
	if k != "FOO" || v != "bar=baz" {
		t.Fatalf("got (%q, %q)", k, v)
	}
	if got := joinKeyValue(k, v); got != "FOO=bar=baz" {
		t.Fatalf("joinKeyValue round-trip mismatch: %q", got)
	}
}

func TestSplitKeyValueMalformedDoesNotPanic(t *testing.T) {
	k, v := splitKeyValue("no-equals-sign")
	if k != "no-equals-sign" || v != "" {
		t.Fatalf("got (%q, %q), want degenerate split", k, v)
	}
}

func TestMapToSliceIsSortedByKey(t *testing.T) {
	m := map[string]string{"ZEBRA": "1", "alpha": "2", "Mid": "3"}
	got := mapToSlice(m)
	want := []string{"Mid=3", "ZEBRA=1", "alpha=2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSliceToMapPrefersLaterValues(t *testing.T) {
	m := sliceToMap([]string{"X=1", "X=2"})
	if m["X"] != "2" {
		t.Fatalf("got %q, want %q", m["X"], "2")
	}
}

func TestMergeMapsPrefersLaterMaps(t *testing.T) {
	m := mergeMaps(map[string]string{"A": "1", "B": "1"}, map[string]string{"B": "2"})
	if m["A"] != "1" || m["B"] != "2" {
		t.Fatalf("got %v", m)
	}
}

func TestCopyMapIsIndependent(t *testing.T) {
	src := map[string]string{"A": "1"}
	dst := copyMap(src)
	dst["A"] = "2"
	if src["A"] != "1" {
		t.Fatalf("copyMap shared storage with its source")
	}
}
