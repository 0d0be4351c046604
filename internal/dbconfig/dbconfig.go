// Package dbconfig implements the on-disk instance configuration surface
// spec.md §6 describes: per-instance tuning knobs (lookthroughlimit,
// idlistscanlimit, allidsthreshold, the three cache-size pools, the
// serial-lock and subtree-rename switches, the old/new IDL-encoding
// switch) plus the per-attribute attrcrypt declarations, loaded from a
// TOML file with environment-variable overrides.
//
// Grounded on the teacher's internal/config package: a package-level
// viper singleton (decision.go's var v), Register*Defaults functions
// called from Initialize, and typed Get* accessors assembling a
// settings struct (decision.go's GetDecisionSettings). TOML replaces
// the teacher's YAML since spec.md's ambient-stack section calls for
// viper+TOML specifically; BurntSushi/toml is viper's TOML codec.
package dbconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config keys, matching spec.md §6's table verbatim.
const (
	KeyLookThroughLimit    = "lookthroughlimit"
	KeyIDListScanLimit     = "idlistscanlimit"
	KeyAllIDsThreshold     = "allidsthreshold"
	KeyDBCacheSize         = "dbcachesize"
	KeyCacheMemSize        = "cachememsize"
	KeyDNCacheMemSize      = "dncachememsize"
	KeySerialLock          = "serial-lock"
	KeySubtreeRenameSwitch = "subtree-rename-switch"
	KeyIDLSwitch           = "idl-switch"
	KeyAttrCrypt           = "attrcrypt"
)

// IDL encoding switch values: the old continuation-block encoding stays
// available alongside the new duplicate-record one; an instance picks
// one at open time.
const (
	IDLSwitchOld = "old"
	IDLSwitchNew = "new"
)

// Default values, chosen to match the orders of magnitude spec.md's own
// worked examples use (S3's allidsthreshold=1000, the filter-test
// threshold idlset already hardcodes at 16 for the in-process union/
// intersect path — idlistscanlimit is sized for the coarser cursor-scan
// limit index.RangeRead accepts, a larger number).
const (
	DefaultLookThroughLimit = 5000
	DefaultIDListScanLimit  = 10000
	DefaultAllIDsThreshold  = 4000
	DefaultDBCacheSize      = 16 * 1024 * 1024  // 16MiB, the backend page-cache pool
	DefaultCacheMemSize     = 64 * 1024 * 1024  // 64MiB, entrycache's budget
	DefaultDNCacheMemSize   = 16 * 1024 * 1024  // 16MiB, DN-normalization cache budget
)

// AttrCryptEntry declares that attrType's stored and indexed values
// should be encrypted under cipher. The core only carries this
// declaration; constructing the attrcrypt.Provider that actually reads
// key material and performs the cipher operation is the front end's
// job (spec.md §4.7 keeps the core polymorphic over key-material
// source).
type AttrCryptEntry struct {
	Attribute string `toml:"attribute" mapstructure:"attribute"`
	Cipher    string `toml:"cipher" mapstructure:"cipher"`
}

// Settings is the fully resolved configuration snapshot, assembled from
// viper by GetSettings.
type Settings struct {
	LookThroughLimit    int
	IDListScanLimit     int
	AllIDsThreshold     int
	DBCacheSize         int64
	CacheMemSize        int64
	DNCacheMemSize      int64
	SerialLock          bool
	SubtreeRenameSwitch bool
	IDLSwitch           string
	AttrCrypt           []AttrCryptEntry
}

// v is the package-level viper instance, matching the teacher's
// internal/config singleton pattern. Initialize must run before any
// Get* call; until then the Get* functions return the zero value.
var v *viper.Viper

// Initialize loads configPath (a TOML file) into the package singleton,
// registering defaults first so that a missing or partial file still
// yields a usable configuration. A missing file is not an error — a
// freshly created instance has no config file yet, per spec.md's
// treatment of these as tunable, not mandatory, settings. Environment
// variables of the form LDBM_<KEY>, with "-" and "." mapped to "_",
// override the file (LDBM_ALLIDSTHRESHOLD, LDBM_SUBTREE_RENAME_SWITCH).
func Initialize(configPath string) error {
	v = viper.New()
	v.SetConfigType("toml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("LDBM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	registerDefaults()

	if configPath == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("dbconfig: reading %s: %w", configPath, err)
	}
	return nil
}

func registerDefaults() {
	if v == nil {
		return
	}
	v.SetDefault(KeyLookThroughLimit, DefaultLookThroughLimit)
	v.SetDefault(KeyIDListScanLimit, DefaultIDListScanLimit)
	v.SetDefault(KeyAllIDsThreshold, DefaultAllIDsThreshold)
	v.SetDefault(KeyDBCacheSize, DefaultDBCacheSize)
	v.SetDefault(KeyCacheMemSize, DefaultCacheMemSize)
	v.SetDefault(KeyDNCacheMemSize, DefaultDNCacheMemSize)
	v.SetDefault(KeySerialLock, false)
	v.SetDefault(KeySubtreeRenameSwitch, true)
	v.SetDefault(KeyIDLSwitch, IDLSwitchNew)
}

// GetLookThroughLimit returns the configured max entries examined per
// query. No search path in this module reads it.
func GetLookThroughLimit() int { return v.GetInt(KeyLookThroughLimit) }

// GetIDListScanLimit returns the configured max IDL length for a range
// read. No caller passes it to index.RangeRead, whose limit parameter is
// what surfaces ErrAdminLimitExceeded.
func GetIDListScanLimit() int { return v.GetInt(KeyIDListScanLimit) }

// GetAllIDsThreshold returns the IDL member count above which
// idl.Codec.Insert promotes a key to AllIDs.
func GetAllIDsThreshold() int { return v.GetInt(KeyAllIDsThreshold) }

// GetDBCacheSize returns the backend page-cache pool's memory cap, in bytes.
func GetDBCacheSize() int64 { return v.GetInt64(KeyDBCacheSize) }

// GetCacheMemSize returns entrycache's memory budget, in bytes.
func GetCacheMemSize() int64 { return v.GetInt64(KeyCacheMemSize) }

// GetDNCacheMemSize returns the DN-normalization cache's memory budget,
// in bytes.
func GetDNCacheMemSize() int64 { return v.GetInt64(KeyDNCacheMemSize) }

// GetSerialLock reports whether all writers should be serialized at the
// backend level rather than allowed to run concurrently and rely on
// deadlock retry.
func GetSerialLock() bool { return v.GetBool(KeySerialLock) }

// GetSubtreeRenameSwitch reports whether Modrdn should prefer the
// entryrdn-style O(1) subtree move over rewriting every descendant.
func GetSubtreeRenameSwitch() bool { return v.GetBool(KeySubtreeRenameSwitch) }

// GetIDLSwitch returns IDLSwitchOld or IDLSwitchNew, selecting which
// idl.Codec an instance opens with.
func GetIDLSwitch() string {
	s := v.GetString(KeyIDLSwitch)
	if s == "" {
		return IDLSwitchNew
	}
	return s
}

// GetAttrCrypt returns the configured per-attribute encryption
// declarations.
func GetAttrCrypt() []AttrCryptEntry {
	var out []AttrCryptEntry
	if v == nil {
		return out
	}
	if err := v.UnmarshalKey(KeyAttrCrypt, &out); err != nil {
		return nil
	}
	return out
}

// ResetForTesting clears the package singleton so a test can call
// Initialize again from a clean state, mirroring the teacher's
// config.ResetForTesting used across decision_test.go and friends.
func ResetForTesting() {
	v = nil
}

// GetSettings assembles the full Settings snapshot.
func GetSettings() Settings {
	return Settings{
		LookThroughLimit:    GetLookThroughLimit(),
		IDListScanLimit:     GetIDListScanLimit(),
		AllIDsThreshold:     GetAllIDsThreshold(),
		DBCacheSize:         GetDBCacheSize(),
		CacheMemSize:        GetCacheMemSize(),
		DNCacheMemSize:      GetDNCacheMemSize(),
		SerialLock:          GetSerialLock(),
		SubtreeRenameSwitch: GetSubtreeRenameSwitch(),
		IDLSwitch:           GetIDLSwitch(),
		AttrCrypt:           GetAttrCrypt(),
	}
}
