package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// vendorMaster is the on-disk approved vendor list
type vendorMaster struct {
	Vendors []string `json:"vendors"`
}

// LoadApprovedVendors reads a vendor master file of the form
// {"vendors": ["Acme Corp", ...]}. Blank entries are dropped.
func LoadApprovedVendors(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vendor master: %w", err)
	}
	var master vendorMaster
	if err := json.Unmarshal(data, &master); err != nil {
		return nil, fmt.Errorf("unmarshaling vendor master: %w", err)
	}
	vendors := make([]string, 0, len(master.Vendors))
	for _, v := range master.Vendors {
		if v = strings.TrimSpace(v); v != "" {
			vendors = append(vendors, v)
		}
	}
	return vendors, nil
}
