package dbconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeNoFile(t *testing.T) {
	ResetForTesting()
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize(\"\") returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize")
	}
}

func TestDefaults(t *testing.T) {
	ResetForTesting()
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"LookThroughLimit", GetLookThroughLimit(), DefaultLookThroughLimit},
		{"IDListScanLimit", GetIDListScanLimit(), DefaultIDListScanLimit},
		{"AllIDsThreshold", GetAllIDsThreshold(), DefaultAllIDsThreshold},
		{"DBCacheSize", GetDBCacheSize(), int64(DefaultDBCacheSize)},
		{"CacheMemSize", GetCacheMemSize(), int64(DefaultCacheMemSize)},
		{"DNCacheMemSize", GetDNCacheMemSize(), int64(DefaultDNCacheMemSize)},
		{"SerialLock", GetSerialLock(), false},
		{"SubtreeRenameSwitch", GetSubtreeRenameSwitch(), true},
		{"IDLSwitch", GetIDLSwitch(), IDLSwitchNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if crypt := GetAttrCrypt(); len(crypt) != 0 {
		t.Errorf("GetAttrCrypt() = %v, want empty", crypt)
	}
}

func TestInitializeFromFile(t *testing.T) {
	ResetForTesting()

	dir := t.TempDir()
	path := filepath.Join(dir, "ldbm.toml")
	contents := `
allidsthreshold = 2500
serial-lock = true
idl-switch = "old"

[[attrcrypt]]
attribute = "userpassword"
cipher = "aes256"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize(%q) returned error: %v", path, err)
	}

	if got := GetAllIDsThreshold(); got != 2500 {
		t.Errorf("AllIDsThreshold = %d, want 2500", got)
	}
	if !GetSerialLock() {
		t.Error("SerialLock = false, want true")
	}
	if got := GetIDLSwitch(); got != IDLSwitchOld {
		t.Errorf("IDLSwitch = %q, want %q", got, IDLSwitchOld)
	}
	// Untouched keys still fall back to their registered defaults.
	if got := GetIDListScanLimit(); got != DefaultIDListScanLimit {
		t.Errorf("IDListScanLimit = %d, want default %d", got, DefaultIDListScanLimit)
	}

	crypt := GetAttrCrypt()
	if len(crypt) != 1 || crypt[0].Attribute != "userpassword" || crypt[0].Cipher != "aes256" {
		t.Errorf("AttrCrypt = %+v, want one entry for userpassword/aes256", crypt)
	}
}

func TestInitializeMissingFileIsNotError(t *testing.T) {
	ResetForTesting()
	path := filepath.Join(t.TempDir(), "does-not-exist.toml")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize with a missing file should not error, got: %v", err)
	}
	if got := GetAllIDsThreshold(); got != DefaultAllIDsThreshold {
		t.Errorf("AllIDsThreshold = %d, want default %d", got, DefaultAllIDsThreshold)
	}
}

func TestGetSettings(t *testing.T) {
	ResetForTesting()
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	s := GetSettings()
	if s.LookThroughLimit != DefaultLookThroughLimit {
		t.Errorf("Settings.LookThroughLimit = %d, want %d", s.LookThroughLimit, DefaultLookThroughLimit)
	}
	if s.IDLSwitch != IDLSwitchNew {
		t.Errorf("Settings.IDLSwitch = %q, want %q", s.IDLSwitch, IDLSwitchNew)
	}
}
