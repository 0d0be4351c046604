package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON matches the teacher's cmd/bd indent-and-encode convention.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatalf("ldbmctl: encoding JSON: %v", err)
	}
}
