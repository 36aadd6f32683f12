package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/utils"
)

// ReportService computes and pretty-prints dataset analytics after a run.
type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate aggregates the collected listings into a ScrapeReport.
func (s *ReportService) Generate(listings []*models.Listing) *models.ScrapeReport {
	report := &models.ScrapeReport{
		ByGender:     make(map[string]int),
		ByAudience:   make(map[string]int),
		ByPostalCode: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var bodyChars int
	for _, l := range listings {
		if l.HasListingID() {
			report.WithListingID++
		}
		if l.Body != "" {
			report.WithBody++
			bodyChars += len([]rune(l.Body))
		}
		if g := genderToken(l.Gender); g != "" {
			report.ByGender[g]++
		}
		if a := strings.ToLower(strings.TrimSpace(l.TargetAudience)); a != "" {
			report.ByAudience[a]++
		}
		if l.PostalCode != "" {
			report.ByPostalCode[l.PostalCode]++
		}
	}

	if report.WithBody > 0 {
		report.AvgBodyChars = round2(float64(bodyChars) / float64(report.WithBody))
	}

	return report
}

// genderToken reduces a gender value like "female 80%" or a site-provided
// word to its bare lowercase token.
func genderToken(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// Print writes the report to stdout.
func (s *ReportService) Print(r *models.ScrapeReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 MARKTVIEW SCRAPE REPORT\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Listings collected     : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Printf("  With listing id        : \033[1m%d\033[0m\n", r.WithListingID)
	fmt.Printf("  With ad text           : \033[1m%d\033[0m\n", r.WithBody)
	if r.AvgBodyChars > 0 {
		fmt.Printf("  Average ad text length : \033[1m%.2f chars\033[0m\n", r.AvgBodyChars)
	}
	fmt.Println()

	printDistribution("Advertiser Gender", r.ByGender, thin)
	printDistribution("Target Audience", r.ByAudience, thin)

	// Top postal codes
	fmt.Printf("\033[1;33m  Top Postal Codes\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.ByPostalCode) == 0 {
		fmt.Printf("  No location data\n")
	} else {
		top := sortedByCount(r.ByPostalCode)
		if len(top) > 10 {
			top = top[:10]
		}
		max := top[0].count
		for _, e := range top {
			fmt.Printf("  %-10s %s (%d)\n", e.key, bar(e.count, max), e.count)
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func printDistribution(title string, counts map[string]int, thin string) {
	fmt.Printf("\033[1;33m  %s\033[0m\n", title)
	fmt.Printf("  %s\n", thin)
	if len(counts) == 0 {
		fmt.Printf("  No data\n")
	} else {
		entries := sortedByCount(counts)
		max := entries[0].count
		for _, e := range entries {
			fmt.Printf("  %-14s %s (%d)\n", truncate(e.key, 12), bar(e.count, max), e.count)
		}
	}
	fmt.Println()
}

type countEntry struct {
	key   string
	count int
}

func sortedByCount(counts map[string]int) []countEntry {
	entries := make([]countEntry, 0, len(counts))
	for key, count := range counts {
		entries = append(entries, countEntry{key, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	return entries
}

// bar renders a count as a block bar scaled against the largest count.
func bar(count, max int) string {
	const width = 30
	n := count * width / max
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
