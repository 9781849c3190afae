package exam

import "fmt"

// Bucket is the average of one exam type's records.
type Bucket struct {
	Type    Type    `json:"exam_type"`
	Label   string  `json:"label"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// RecordsLabel renders the count as "1 exam" or "N exams".
func (b Bucket) RecordsLabel() string {
	if b.Count == 1 {
		return "1 exam"
	}
	return fmt.Sprintf("%d exams", b.Count)
}

// Performance summarizes a student's exams for the progress report.
type Performance struct {
	Buckets []Bucket `json:"buckets"`
	// Overall averages every record, whatever its type.
	Overall float64 `json:"overall"`
	Total   int     `json:"total"`
}

// HasOverall reports whether any exam was recorded.
func (p Performance) HasOverall() bool {
	return p.Total > 0
}

// OverallRecordsLabel renders "N total records".
func (p Performance) OverallRecordsLabel() string {
	return fmt.Sprintf("%d total records", p.Total)
}

// ComputePerformance averages the backend percentages per exam type, keeping
// only types with at least one record, in AllTypes order.
func ComputePerformance(records []Record) Performance {
	sums := make(map[Type]float64, len(AllTypes))
	counts := make(map[Type]int, len(AllTypes))

	var p Performance
	var total float64
	for _, r := range records {
		t := NormalizeType(string(r.Type))
		sums[t] += r.Percentage
		counts[t]++
		total += r.Percentage
		p.Total++
	}

	for _, t := range AllTypes {
		n := counts[t]
		if n == 0 {
			continue
		}
		p.Buckets = append(p.Buckets, Bucket{
			Type:    t,
			Label:   t.Label(),
			Average: sums[t] / float64(n),
			Count:   n,
		})
	}
	if p.Total > 0 {
		p.Overall = total / float64(p.Total)
	}
	return p
}
