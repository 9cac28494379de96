package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Process types reported in the automation configuration
const (
	ProcessTypeMongod = "mongod"
	ProcessTypeMongos = "mongos"
)

// EnterpriseSuffix marks enterprise builds in the versions catalog
const EnterpriseSuffix = "-ent"

// AlertStatusOpen is the status of an unresolved alert
const AlertStatusOpen = "OPEN"

// HostTypeNoData is reported for hosts the agents no longer monitor
const HostTypeNoData = "NO_DATA"

// Group represents an Ops Manager group (project), which maps to one cluster
type Group struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OrgID            string `json:"orgId,omitempty"`
	ActiveAgentCount int    `json:"activeAgentCount"`
}

// Link is a HAL style link returned with paginated resources
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Page is one page of a paginated list resource
type Page[T any] struct {
	Results    []T    `json:"results"`
	TotalCount int    `json:"totalCount"`
	Links      []Link `json:"links"`
}

// HasNext reports whether the service advertised another page
func (p *Page[T]) HasNext() bool {
	if len(p.Links) == 0 {
		return false
	}
	return p.Links[len(p.Links)-1].Rel == "next"
}

// AutomationConfig is the declarative document describing every process
// of a group. It is replaced wholesale on PUT, so fields this package does
// not model are carried in Extra and written back untouched.
type AutomationConfig struct {
	Processes       []*Process        `json:"processes"`
	Auth            *Auth             `json:"auth,omitempty"`
	MongoDBVersions []*MongoDBVersion `json:"mongoDbVersions"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the document and keeps unmodeled fields
func (c *AutomationConfig) UnmarshalJSON(data []byte) error {
	type plain AutomationConfig
	var v plain
	extra, err := decodeDocument(data, &v)
	if err != nil {
		return err
	}
	*c = AutomationConfig(v)
	c.Extra = extra
	return nil
}

// MarshalJSON encodes the document including unmodeled fields
func (c AutomationConfig) MarshalJSON() ([]byte, error) {
	type plain AutomationConfig
	return encodeDocument(plain(c), c.Extra)
}

// HasVersion reports whether the versions catalog contains name
func (c *AutomationConfig) HasVersion(name string) bool {
	for _, v := range c.MongoDBVersions {
		if v.Name == name {
			return true
		}
	}
	return false
}

// Process is one mongod/mongos entry of the automation configuration
type Process struct {
	Name                        string `json:"name,omitempty"`
	Hostname                    string `json:"hostname"`
	ProcessType                 string `json:"processType"`
	Version                     string `json:"version"`
	FeatureCompatibilityVersion string `json:"featureCompatibilityVersion,omitempty"`
	Disabled                    bool   `json:"disabled"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the process and keeps unmodeled fields
func (p *Process) UnmarshalJSON(data []byte) error {
	type plain Process
	var v plain
	extra, err := decodeDocument(data, &v)
	if err != nil {
		return err
	}
	*p = Process(v)
	p.Extra = extra
	return nil
}

// MarshalJSON encodes the process including unmodeled fields
func (p Process) MarshalJSON() ([]byte, error) {
	type plain Process
	return encodeDocument(plain(p), p.Extra)
}

// Port returns net.port from the process startup options (args2_6)
func (p *Process) Port() (int, error) {
	raw, ok := p.Extra["args2_6"]
	if !ok {
		return 0, fmt.Errorf("process %s has no args2_6 block: %w", p.Hostname, ErrNotFound)
	}

	var args struct {
		Net struct {
			Port json.RawMessage `json:"port"`
		} `json:"net"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return 0, fmt.Errorf("failed to decode args2_6 of %s: %w", p.Hostname, err)
	}
	if len(args.Net.Port) == 0 {
		return 0, fmt.Errorf("process %s has no net.port: %w", p.Hostname, ErrNotFound)
	}

	// The port is a number in most documents but some agents write a string
	port := strings.Trim(string(args.Net.Port), `"`)
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0, fmt.Errorf("invalid net.port %q for %s: %w", port, p.Hostname, err)
	}
	return n, nil
}

// Auth is the automation agent credential block
type Auth struct {
	AutoUser string `json:"autoUser,omitempty"`
	AutoPwd  string `json:"autoPwd,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the auth block and keeps unmodeled fields
func (a *Auth) UnmarshalJSON(data []byte) error {
	type plain Auth
	var v plain
	extra, err := decodeDocument(data, &v)
	if err != nil {
		return err
	}
	*a = Auth(v)
	a.Extra = extra
	return nil
}

// MarshalJSON encodes the auth block including unmodeled fields
func (a Auth) MarshalJSON() ([]byte, error) {
	type plain Auth
	return encodeDocument(plain(a), a.Extra)
}

// MongoDBVersion is one entry of the versions catalog
type MongoDBVersion struct {
	Name   string  `json:"name"`
	Builds []Build `json:"builds"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the catalog entry and keeps unmodeled fields
func (v *MongoDBVersion) UnmarshalJSON(data []byte) error {
	type plain MongoDBVersion
	var p plain
	extra, err := decodeDocument(data, &p)
	if err != nil {
		return err
	}
	*v = MongoDBVersion(p)
	v.Extra = extra
	return nil
}

// MarshalJSON encodes the catalog entry including unmodeled fields
func (v MongoDBVersion) MarshalJSON() ([]byte, error) {
	type plain MongoDBVersion
	return encodeDocument(plain(v), v.Extra)
}

// Build describes a downloadable MongoDB build artifact
type Build struct {
	Architecture string   `json:"architecture"`
	Bits         int      `json:"bits"`
	Flavor       string   `json:"flavor,omitempty"`
	MaxOSVersion string   `json:"maxOsVersion,omitempty"`
	MinOSVersion string   `json:"minOsVersion,omitempty"`
	GitVersion   string   `json:"gitVersion,omitempty"`
	Modules      []string `json:"modules"`
	Platform     string   `json:"platform"`
	URL          string   `json:"url"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the build and keeps unmodeled fields
func (b *Build) UnmarshalJSON(data []byte) error {
	type plain Build
	var v plain
	extra, err := decodeDocument(data, &v)
	if err != nil {
		return err
	}
	*b = Build(v)
	b.Extra = extra
	return nil
}

// MarshalJSON encodes the build including unmodeled fields
func (b Build) MarshalJSON() ([]byte, error) {
	type plain Build
	return encodeDocument(plain(b), b.Extra)
}

// AutomationStatus reports the goal version and what each process achieved
type AutomationStatus struct {
	GoalVersion int             `json:"goalVersion"`
	Processes   []ProcessStatus `json:"processes"`
}

// ProcessStatus is the per-process part of the automation status
type ProcessStatus struct {
	Name                    string   `json:"name"`
	Hostname                string   `json:"hostname"`
	LastGoalVersionAchieved int      `json:"lastGoalVersionAchieved"`
	Plan                    []string `json:"plan,omitempty"`
}

// Converged returns true when every process achieved the goal version
func (s *AutomationStatus) Converged() bool {
	return len(s.Pending()) == 0
}

// Pending returns the processes that did not reach the goal version yet
func (s *AutomationStatus) Pending() []ProcessStatus {
	var pending []ProcessStatus
	for _, p := range s.Processes {
		if p.LastGoalVersionAchieved != s.GoalVersion {
			pending = append(pending, p)
		}
	}
	return pending
}

// MaintenanceWindow silences alerts of the listed types for a time range
type MaintenanceWindow struct {
	ID             string   `json:"id,omitempty"`
	GroupID        string   `json:"groupId,omitempty"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	AlertTypeNames []string `json:"alertTypeNames"`
	Description    string   `json:"description,omitempty"`
}

// windowLayouts are the date formats seen in maintenance window documents
var windowLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// End parses EndDate. The second result is false when it cannot be parsed.
func (w *MaintenanceWindow) End() (time.Time, bool) {
	return parseWindowDate(w.EndDate)
}

// Start parses StartDate. The second result is false when it cannot be parsed.
func (w *MaintenanceWindow) Start() (time.Time, bool) {
	return parseWindowDate(w.StartDate)
}

// Expired reports whether the window ended before now. Windows with an
// unparseable end date never expire.
func (w *MaintenanceWindow) Expired(now time.Time) bool {
	end, ok := w.End()
	if !ok {
		return false
	}
	return end.Before(now)
}

func parseWindowDate(s string) (time.Time, bool) {
	for _, layout := range windowLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Alert is an alert raised on a group
type Alert struct {
	ID            string `json:"id"`
	GroupID       string `json:"groupId,omitempty"`
	Status        string `json:"status"`
	TypeName      string `json:"typeName,omitempty"`
	EventTypeName string `json:"eventTypeName,omitempty"`
	Created       string `json:"created,omitempty"`
}

// Open reports whether the alert is unresolved
func (a *Alert) Open() bool {
	return a.Status == AlertStatusOpen
}

// Host is a monitored host of a group
type Host struct {
	ID             string `json:"id"`
	Hostname       string `json:"hostname"`
	Port           int    `json:"port"`
	TypeName       string `json:"typeName"`
	ReplicaSetName string `json:"replicaSetName,omitempty"`
}

// ConnectionInfo is what is needed to open a diagnostic connection to the
// cluster router. It is derived from the automation configuration and never
// persisted.
type ConnectionInfo struct {
	User     string
	Password string
	Host     string
	Port     int
}

// Address returns host:port
func (c ConnectionInfo) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReplicaState is the numeric state of a replica set member
type ReplicaState int

// Replica set member states as reported by replSetGetStatus
const (
	ReplicaStartup    ReplicaState = 0
	ReplicaPrimary    ReplicaState = 1
	ReplicaSecondary  ReplicaState = 2
	ReplicaRecovering ReplicaState = 3
	ReplicaStartup2   ReplicaState = 5
	ReplicaUnknown    ReplicaState = 6
	ReplicaArbiter    ReplicaState = 7
	ReplicaDown       ReplicaState = 8
	ReplicaRollback   ReplicaState = 9
	ReplicaRemoved    ReplicaState = 10
)

// poorStates block any disruptive operation on the cluster
var poorStates = map[ReplicaState]bool{
	0:  true,
	3:  true,
	5:  true,
	6:  true,
	8:  true,
	9:  true,
	10: true,
}

// Poor reports whether the member is in a state that makes the cluster
// unfit for maintenance
func (s ReplicaState) Poor() bool {
	return poorStates[s]
}

// String returns the replSetGetStatus stateStr for s
func (s ReplicaState) String() string {
	switch s {
	case ReplicaStartup:
		return "STARTUP"
	case ReplicaPrimary:
		return "PRIMARY"
	case ReplicaSecondary:
		return "SECONDARY"
	case ReplicaRecovering:
		return "RECOVERING"
	case ReplicaStartup2:
		return "STARTUP2"
	case ReplicaUnknown:
		return "UNKNOWN"
	case ReplicaArbiter:
		return "ARBITER"
	case ReplicaDown:
		return "DOWN"
	case ReplicaRollback:
		return "ROLLBACK"
	case ReplicaRemoved:
		return "REMOVED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// MemberState pairs a replica set member with its state
type MemberState struct {
	ReplicaSet string
	Name       string
	State      ReplicaState
}

// Lease is a maintenance window held by one opsmgr invocation
type Lease struct {
	GroupID    string    `json:"group_id"`
	WindowID   string    `json:"window_id"`
	Owner      string    `json:"owner"`
	Host       string    `json:"host,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt is zero for leases that never expire
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the lease ran past its expiry
func (l *Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && l.ExpiresAt.Before(now)
}

// StepRecord is the outcome of one workflow step
type StepRecord struct {
	Name     string        `json:"name"`
	Result   string        `json:"result"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Run is the journal entry of one workflow execution
type Run struct {
	ID         string       `json:"id"`
	Workflow   string       `json:"workflow"`
	GroupID    string       `json:"group_id,omitempty"`
	Host       string       `json:"host,omitempty"`
	Version    string       `json:"version,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
	Steps      []StepRecord `json:"steps"`
	Result     string       `json:"result"`
	Error      string       `json:"error,omitempty"`
}
