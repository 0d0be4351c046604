// Package dbversion implements the DBVERSION file spec.md §6 describes:
// a marker at each instance's root recording the on-disk encoding
// version and the active IDL scheme, plus the upgrade pass a version
// mismatch on the "upgrade-3-to-4" axis triggers before the instance is
// used.
//
// Grounded on the teacher's internal/storage/sqlite/migrations package:
// numbered, idempotent migration steps applied in order. That package's
// migrations rewrite SQL schema in place; this package's one migration
// step rewrites IDL-encoded index values in place (old continuation-block
// encoding to new duplicate-record encoding), since this backend has no
// literal on-disk files to rename — kvstore.Store's Table abstraction
// already stands in for spec.md's "one file per attribute index".
package dbversion

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/dirserv/ldbm/internal/dbconfig"
)

// FileName is the marker file's name at an instance directory's root.
const FileName = "DBVERSION"

// Version 3 is the old continuation-block IDL encoding; version 4 is
// the new duplicate-record encoding.
const (
	Version3 = 3
	Version4 = 4

	CurrentVersion = Version4
)

// Info is the DBVERSION file's content.
type Info struct {
	Version   int    `toml:"version"`
	IDLScheme string `toml:"idl_scheme"`
}

// Current is the Info a freshly created instance is stamped with.
func Current() Info {
	return Info{Version: CurrentVersion, IDLScheme: dbconfig.IDLSwitchNew}
}

// Read loads path's DBVERSION file. A missing file is reported back as
// Version3/IDLSwitchOld rather than an error: every pre-existing
// instance that predates this marker is, by definition, still on the
// old encoding, which is exactly the condition NeedsUpgrade must detect.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{Version: Version3, IDLScheme: dbconfig.IDLSwitchOld}, nil
		}
		return Info{}, fmt.Errorf("dbversion: reading %s: %w", path, err)
	}
	var info Info
	if err := toml.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("dbversion: parsing %s: %w", path, err)
	}
	return info, nil
}

// Write stamps path with info, truncating any prior content.
func Write(path string, info Info) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(info); err != nil {
		return fmt.Errorf("dbversion: encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("dbversion: writing %s: %w", path, err)
	}
	return nil
}

// NeedsUpgrade reports whether info sits on the old side of the
// upgrade-3-to-4 axis.
func (info Info) NeedsUpgrade() bool {
	return info.Version < Version4 || info.IDLScheme == dbconfig.IDLSwitchOld
}
