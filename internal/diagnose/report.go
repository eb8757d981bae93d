package diagnose

// Report is the final structured output of a diagnostic session. Everything
// derived comes from the diagnostic context; the advisory blocks at the
// bottom are fixed operator guidance, identical for every session.
type Report struct {
	Summary                  ReportSummary    `json:"summary"`
	IdentifiedIssues         []string         `json:"identifiedIssues"`
	RewriteRules             RulePartition    `json:"rewriteRulesForRAPortal"`
	NetworkAnalysis          NetworkAnalysis  `json:"networkAnalysis"`
	ConsoleAnalysis          ConsoleAnalysis  `json:"consoleAnalysis"`
	ResourceAnalysis         ResourceAnalysis `json:"resourceAnalysis"`
	ImmediateActions         []string         `json:"immediateActions"`
	ManualTroubleshooting    []string         `json:"manualTroubleshooting"`
	EscalationPath           []string         `json:"escalationPath"`
	CustomerInfoRequirements []string         `json:"customerInfoRequirements"`
	KnownPortReference       []PortReference  `json:"knownPortReference"`
}

// ReportSummary is the identity-and-counts header of the report.
type ReportSummary struct {
	DeviceURL           string         `json:"deviceUrl"`
	DeviceIP            string         `json:"deviceIp"`
	DeviceHostname      string         `json:"deviceHostname"`
	PageLoadStatus      PageLoadStatus `json:"pageLoadStatus"`
	CurrentPhase        string         `json:"currentPhase"`
	IssueCount          int            `json:"issueCount"`
	RuleCount           int            `json:"ruleCount"`
	NetworkObservations int            `json:"networkObservations"`
	ConsoleObservations int            `json:"consoleObservations"`
}

// RulePartition holds the catalog sorted by priority and split by kind. The
// three partitions are disjoint and together contain every rule.
type RulePartition struct {
	TotalRules     int           `json:"totalRules"`
	DefaultRules   []RewriteRule `json:"defaultRules"`
	HeaderRewrites []RewriteRule `json:"headerRewrites"`
	BodyRewrites   []RewriteRule `json:"bodyRewrites"`
}

// NetworkAnalysis aggregates the network observation list.
type NetworkAnalysis struct {
	TotalRequests            int  `json:"totalRequests"`
	FailedRequests           int  `json:"failedRequests"`
	DeviceRequests           int  `json:"deviceRequests"`
	PrivateAPIRequests       int  `json:"privateApiRequests"`
	RedirectCount            int  `json:"redirectCount"`
	RecommendJSONBodyRewrite bool `json:"recommendJsonBodyRewrite"`
}

// ConsoleAnalysis aggregates the retained console observations.
type ConsoleAnalysis struct {
	TotalMessages    int `json:"totalMessages"`
	MIMEMismatches   int `json:"mimeMismatches"`
	BootstrapDefects int `json:"bootstrapDefects"`
}

// ResourceAnalysis aggregates the DOM resource findings.
type ResourceAnalysis struct {
	BrokenImages      int `json:"brokenImages"`
	DeviceLinks       int `json:"deviceLinks"`
	StaticPaths       int `json:"staticPaths"`
	WebSocketFindings int `json:"webSocketFindings"`
}

// PortReference is one row of the known-port lookup table.
type PortReference struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Purpose  string `json:"purpose"`
}

// BuildReport reduces a diagnostic context into the final report. Pure read:
// the context is not modified, and the same context always yields the same
// report.
func BuildReport(dctx *Context) *Report {
	network := dctx.NetworkObservations()
	console := dctx.ConsoleObservations()
	issues := dctx.Issues()

	partition := RulePartition{
		TotalRules:     dctx.Rules.Len(),
		DefaultRules:   []RewriteRule{},
		HeaderRewrites: []RewriteRule{},
		BodyRewrites:   []RewriteRule{},
	}
	for _, rule := range dctx.Rules.Sorted() {
		switch rule.Kind {
		case RuleKindHeader:
			partition.HeaderRewrites = append(partition.HeaderRewrites, rule)
		case RuleKindBody:
			partition.BodyRewrites = append(partition.BodyRewrites, rule)
		default:
			partition.DefaultRules = append(partition.DefaultRules, rule)
		}
	}

	netAnalysis := NetworkAnalysis{
		TotalRequests: len(network),
		RedirectCount: len(dctx.Redirects),
	}
	for _, obs := range network {
		if obs.Status >= 400 || obs.Error != "" {
			netAnalysis.FailedRequests++
		}
		if obs.TargetsDevice {
			netAnalysis.DeviceRequests++
		}
		if obs.IsPrivateAPI {
			netAnalysis.PrivateAPIRequests++
			netAnalysis.RecommendJSONBodyRewrite = true
		}
	}

	consoleAnalysis := ConsoleAnalysis{TotalMessages: len(console)}
	for _, obs := range console {
		if obs.IsMIMEMismatch {
			consoleAnalysis.MIMEMismatches++
		}
		if obs.IsBootstrapJS {
			consoleAnalysis.BootstrapDefects++
		}
	}

	return &Report{
		Summary: ReportSummary{
			DeviceURL:           dctx.Target.URL,
			DeviceIP:            dctx.Target.IP,
			DeviceHostname:      dctx.Target.Hostname,
			PageLoadStatus:      dctx.PageLoadStatus,
			CurrentPhase:        dctx.CurrentPhase,
			IssueCount:          len(issues),
			RuleCount:           dctx.Rules.Len(),
			NetworkObservations: len(network),
			ConsoleObservations: len(console),
		},
		IdentifiedIssues: issues,
		RewriteRules:     partition,
		NetworkAnalysis:  netAnalysis,
		ConsoleAnalysis:  consoleAnalysis,
		ResourceAnalysis: ResourceAnalysis{
			BrokenImages:      len(dctx.BrokenImages),
			DeviceLinks:       len(dctx.DeviceLinks),
			StaticPaths:       len(dctx.StaticPaths),
			WebSocketFindings: len(dctx.WebSocketNotes),
		},
		ImmediateActions:         immediateActions,
		ManualTroubleshooting:    manualTroubleshooting,
		EscalationPath:           escalationPath,
		CustomerInfoRequirements: customerInfoRequirements,
		KnownPortReference:       knownPortReference,
	}
}

// Static advisory content. Operator guidance only; nothing below is derived
// from the session.
var (
	immediateActions = []string{
		"Apply the generated rewrite rules to the RA portal in priority order",
		"Re-test the device login page through the portal after each rule batch",
		"Capture a browser HAR file if the page still fails after all rules",
	}

	manualTroubleshooting = []string{
		"curl -I the device URL from the proxy host and compare headers with the probe findings",
		"Open the browser devtools network tab and filter for 4xx/5xx responses",
		"Check whether the device UI loads correctly when accessed directly on the LAN",
		"Verify the proxy terminates TLS and forwards X-Forwarded-Proto: https",
	}

	escalationPath = []string{
		"Tier 1: apply default rules and confirm page load status",
		"Tier 2: session replay with full network/console capture attached",
		"Tier 3: vendor engagement with firmware version and probe headers",
	}

	customerInfoRequirements = []string{
		"Device vendor, model, and firmware version",
		"Internal IP/hostname and the external FQDN assigned in the portal",
		"Whether the device UI works when accessed directly (bypassing the proxy)",
		"Screenshot or HAR of the failing page",
	}

	knownPortReference = []PortReference{
		{Port: 80, Protocol: "http", Purpose: "Device web UI (unencrypted)"},
		{Port: 443, Protocol: "https", Purpose: "Device web UI (TLS)"},
		{Port: 8080, Protocol: "http/ws", Purpose: "Alternate UI / WebSocket endpoint"},
		{Port: 8081, Protocol: "ws", Purpose: "Telemetry WebSocket"},
		{Port: 8443, Protocol: "https/wss", Purpose: "Management interface"},
		{Port: 9001, Protocol: "ws", Purpose: "Event stream WebSocket"},
		{Port: 502, Protocol: "modbus-tcp", Purpose: "Modbus (never proxied over HTTP)"},
		{Port: 47808, Protocol: "bacnet", Purpose: "BACnet/IP (never proxied over HTTP)"},
	}
)
