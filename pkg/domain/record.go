package domain

import "github.com/sbm367/syft/pkg/tensor"

// Record is a tensor registered under a unique id.
type Record struct {
	ID     string         `json:"id"`
	Tensor *tensor.Tensor `json:"tensor"`
}

// IDs returns the ids of the records, in order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
