package model

import "fmt"

// Diagnostic is a non-fatal problem absorbed during a query.
// The query continues with degraded behavior; the diagnostic tells the
// caller what was degraded and why.
type Diagnostic struct {
	Component string   `json:"component"`
	Modality  Modality `json:"modality,omitempty"`
	Message   string   `json:"message"`
	Err       error    `json:"-"`
}

func (d Diagnostic) Error() string {
	prefix := d.Component
	if d.Modality != "" {
		prefix = fmt.Sprintf("%s[%s]", d.Component, d.Modality)
	}
	if d.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, d.Message, d.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, d.Message)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}
