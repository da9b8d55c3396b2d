package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Document is a single earnings-call transcript. Documents are immutable
// once stored; a corrected file re-ingested under the same ID supersedes
// the previous content rather than mutating it.
type Document struct {
	ID      string    // deterministic: <ticker lowercased>_<filename>
	Company string    // ticker, e.g. "AAPL"
	Date    time.Time // fiscal call date
	Quarter string    // e.g. "Q3 2020", derived from Date
	Path    string    // source file path
	Text    string    // raw transcript text
}

// companyNames maps the covered tickers to display names.
var companyNames = map[string]string{
	"AAPL":  "Apple Inc.",
	"AMD":   "Advanced Micro Devices Inc.",
	"AMZN":  "Amazon.com Inc.",
	"ASML":  "ASML Holding N.V.",
	"CSCO":  "Cisco Systems Inc.",
	"GOOGL": "Alphabet Inc.",
	"INTC":  "Intel Corporation",
	"MSFT":  "Microsoft Corporation",
	"MU":    "Micron Technology Inc.",
	"NVDA":  "NVIDIA Corporation",
}

// CompanyName returns the display name for a ticker, falling back to the
// ticker itself for companies outside the known set.
func CompanyName(ticker string) string {
	if name, ok := companyNames[strings.ToUpper(ticker)]; ok {
		return name
	}
	return strings.ToUpper(ticker)
}

// IsKnownTicker reports whether the ticker is in the covered set.
func IsKnownTicker(ticker string) bool {
	_, ok := companyNames[strings.ToUpper(ticker)]
	return ok
}

// DocumentID builds the deterministic document identifier used across the
// metadata store and the vector index.
func DocumentID(ticker, filename string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(ticker), filename)
}
