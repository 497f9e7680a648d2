package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Family names one legacy source and the tables it fills.
type Family string

// Upgrade families, in the order they run.
const (
	FamilyDomains   Family = "domains"
	FamilyRoster    Family = "roster"
	FamilyAuthCache Family = "authcache"
)

// Status is the outcome of one family.
type Status string

// Family statuses.
const (
	// StatusSucceeded: every record was migrated.
	StatusSucceeded Status = "succeeded"
	// StatusPartial: the family committed but some records were malformed.
	StatusPartial Status = "partial"
	// StatusSkipped: the legacy source could not be opened or read.
	StatusSkipped Status = "skipped"
	// StatusFailed: the family transaction was rolled back.
	StatusFailed Status = "failed"
	// StatusPresent: the tables already held rows from an earlier run.
	StatusPresent Status = "present"
	// StatusAbsent: no legacy source was configured.
	StatusAbsent Status = "absent"
	// StatusDeferred: the auth cache lives outside the primary store, so
	// its table was created but left empty.
	StatusDeferred Status = "deferred"
)

// Outcome records what happened to one family.
type Outcome struct {
	Family       Family `json:"family" yaml:"family"`
	Source       string `json:"source,omitempty" yaml:"source,omitempty"`
	Status       Status `json:"status" yaml:"status"`
	Read         int    `json:"read" yaml:"read"`
	Inserted     int    `json:"inserted" yaml:"inserted"`
	DecodeErrors int    `json:"decode_errors" yaml:"decode_errors"`
	// Ignored counts roster keys outside the known families. Dropped counts
	// full-name entries whose key names no domain.
	Ignored      int    `json:"ignored,omitempty" yaml:"ignored,omitempty"`
	Dropped      int    `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the error that skipped or failed the family, if any.
func (o Outcome) Err() error { return o.err }

func (o *Outcome) setErr(status Status, err error) {
	o.Status = status
	o.err = err
	o.Error = err.Error()
}

// Report summarizes one upgrade run so that an operator can decide whether
// to re-run against a corrected legacy source.
type Report struct {
	RunID    string              `json:"run_id" yaml:"run_id"`
	Target   string              `json:"target" yaml:"target"`
	Strategy types.CacheStrategy `json:"cache_strategy" yaml:"cache_strategy"`
	Started  time.Time           `json:"started" yaml:"started"`
	Finished time.Time           `json:"finished" yaml:"finished"`
	Families []Outcome           `json:"families" yaml:"families"`
}

// Outcome returns the outcome recorded for family.
func (r *Report) Outcome(family Family) (Outcome, bool) {
	for _, o := range r.Families {
		if o.Family == family {
			return o, true
		}
	}
	return Outcome{}, false
}

// Complete reports whether no family was skipped or failed.
func (r *Report) Complete() bool {
	for _, o := range r.Families {
		if o.Status == StatusSkipped || o.Status == StatusFailed {
			return false
		}
	}
	return true
}

// WriteYAML renders the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
