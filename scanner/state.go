package scanner

// Status is one stage of the scan lifecycle.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusStarting         Status = "starting"
	StatusCrawling         Status = "crawling"
	StatusAnalyzing        Status = "analyzing"
	StatusGeneratingReport Status = "generating_report"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// stageOrder drives progress math and transition validation. failed is absent:
// it is reachable from any non-terminal state.
var stageOrder = map[Status]int{
	StatusQueued:           0,
	StatusStarting:         1,
	StatusCrawling:         2,
	StatusAnalyzing:        3,
	StatusGeneratingReport: 4,
	StatusCompleted:        5,
}

// canTransition validates a lifecycle move. Forward moves through the stage
// sequence are allowed; failed is allowed from any non-terminal state.
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fo, ok1 := stageOrder[from]
	to2, ok2 := stageOrder[to]
	return ok1 && ok2 && to2 == fo+1
}

// crawlProgressCap reserves headroom for the analysis and report phases.
const crawlProgressCap = 80

// progressFor maps status (plus crawl counters) to a percentage. Within
// crawling, progress follows the crawled/discovered ratio but never exceeds
// the cap while pages remain.
func progressFor(status Status, crawled, discovered int) int {
	switch status {
	case StatusQueued:
		return 0
	case StatusStarting:
		return 5
	case StatusCrawling:
		if discovered <= 0 {
			return 10
		}
		p := 10 + (crawled*(crawlProgressCap-10))/discovered
		if p > crawlProgressCap {
			return crawlProgressCap
		}
		return p
	case StatusAnalyzing:
		return 85
	case StatusGeneratingReport:
		return 95
	case StatusCompleted:
		return 100
	default: // failed keeps whatever the caller last had
		return 0
	}
}

// stepLabel is the human-readable current step shown to subscribers.
func stepLabel(status Status) string {
	switch status {
	case StatusQueued:
		return "Waiting in queue"
	case StatusStarting:
		return "Starting browser session"
	case StatusCrawling:
		return "Crawling pages"
	case StatusAnalyzing:
		return "Analyzing accessibility"
	case StatusGeneratingReport:
		return "Generating report"
	case StatusCompleted:
		return "Scan complete"
	case StatusFailed:
		return "Scan failed"
	}
	return string(status)
}
