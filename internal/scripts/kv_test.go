package scripts

import "testing"

func TestParseKeyValue_LastWriteWins(t *testing.T) {
	kv := ParseKeyValue("a=1\nb=2\nbad-line\na=3")

	if got, _ := kv.Get("a"); got != "3" {
		t.Errorf("a = %q, want %q", got, "3")
	}
	if got, _ := kv.Get("b"); got != "2" {
		t.Errorf("b = %q, want %q", got, "2")
	}
	if kv.Len() != 2 {
		t.Errorf("Len() = %d, want 2", kv.Len())
	}
}

func TestParseKeyValue_FirstEqualsSplit(t *testing.T) {
	kv := ParseKeyValue("band=EUTRAN-BAND20 (earfcn=6300)")
	got, ok := kv.Get("band")
	if !ok || got != "EUTRAN-BAND20 (earfcn=6300)" {
		t.Errorf("band = %q (ok=%v), want value containing '='", got, ok)
	}
}

func TestParseKeyValue_TrimsAndSkips(t *testing.T) {
	kv := ParseKeyValue("  rssi = -85  \n\n   \nnot a pair\n")
	if got, _ := kv.Get("rssi"); got != "-85" {
		t.Errorf("rssi = %q, want %q", got, "-85")
	}
	if kv.Len() != 1 {
		t.Errorf("Len() = %d, want 1", kv.Len())
	}
}

func TestParseKeyValue_EmptyInput(t *testing.T) {
	kv := ParseKeyValue("")
	if kv.Len() != 0 {
		t.Errorf("Len() = %d, want 0", kv.Len())
	}
}

func TestParseKeyValue_KeyOrder(t *testing.T) {
	kv := ParseKeyValue("iface=lte1\nrssi=-80\nrsrp=-110\nrssi=-81")
	want := []string{"iface", "rssi", "rsrp"}
	got := kv.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFloat(t *testing.T) {
	kv := ParseKeyValue("rssi=-85\nrsrp=none\nrsrq=\nsinr=garbage\nband=B20")

	tests := []struct {
		key    string
		want   float64
		wantOK bool
	}{
		{"rssi", -85, true},
		{"rsrp", 0, false},    // literal "none"
		{"rsrq", 0, false},    // empty value
		{"sinr", 0, false},    // non-numeric
		{"missing", 0, false}, // absent
	}
	for _, tt := range tests {
		got, ok := kv.Float(tt.key)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Float(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCatalog(t *testing.T) {
	if Get("no_such_script") != nil {
		t.Error("Get(unknown) should return nil")
	}

	reboot := Get(ScriptReboot)
	if reboot == nil {
		t.Fatal("Get(reboot) returned nil")
	}
	if !reboot.Dangerous {
		t.Error("reboot should be flagged dangerous")
	}
	if reboot.ConfirmMessage == "" {
		t.Error("dangerous script should carry a confirm message")
	}

	list := List()
	if len(list) == 0 {
		t.Fatal("List() returned no scripts")
	}
	// Declaration order is part of the contract.
	if list[0].ID != ScriptSimInfo {
		t.Errorf("List()[0].ID = %q, want %q", list[0].ID, ScriptSimInfo)
	}
	for _, d := range list {
		if d.Command == "" {
			t.Errorf("script %q has empty command", d.ID)
		}
	}
}
