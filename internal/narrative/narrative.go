// Package narrative renders the canonical accident report document.
//
// Rendering is a pure function of the record: the same record always yields
// the same document, so the stored digest can be recomputed by any agency.
package narrative

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/shopspring/decimal"
)

const reportTemplate = `ACCIDENT REPORT {{.ID}}
Status: {{.Status}}

Occurred:   {{formatTime .OccurredAt}}
Location:   {{orDash .Location}}
Weather:    {{orDash .Conditions.Weather}}
Road:       {{orDash .Conditions.Road}}
Light:      {{orDash .Conditions.Light}}

Reporting officer: {{.AuthorID}}
Reviewed by:       {{.Report.ReviewerID}} at {{formatTimePtr .Report.ReviewedAt}}
{{- if .Report.ReviewNotes}}
Review notes:      {{.Report.ReviewNotes}}
{{- end}}

NARRATIVE
{{.Narrative}}

VEHICLES ({{len .Vehicles}})
{{- range $i, $v := .Vehicles}}
{{inc $i}}. {{$v.Registration}} {{$v.Make}} {{$v.Model}}{{if $v.Year}} ({{$v.Year}}){{end}}
   Driver:  {{orDash $v.DriverName}} [{{orDash $v.DriverID}}]
   Insurer: {{orDash $v.InsurerID}} policy {{orDash $v.PolicyNumber}}
   Fault:   {{$v.FaultPercent}}%
   Damage:  {{orDash $v.DamageDescription}}
{{- with $v.Assessment}}
   Assessment by {{.AssessorID}}: {{.Severity}}, {{if .Roadworthy}}roadworthy{{else}}not roadworthy{{end}}, est. repair {{formatAmount .EstimatedRepairCost}}
{{- end}}
{{- end}}

WITNESSES ({{len .Witnesses}})
{{- range $i, $w := .Witnesses}}
{{inc $i}}. {{orDash $w.Name}} ({{orDash $w.Contact}}) recorded {{formatTime $w.RecordedAt}}
   "{{$w.Statement}}"
{{- end}}
`

var tpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime":    formatTime,
	"formatTimePtr": formatTimePtr,
	"formatAmount":  formatAmount,
	"orDash":        orDash,
	"inc":           func(i int) int { return i + 1 },
}).Parse(reportTemplate))

// Render returns the report document for rec.
func Render(rec *domain.AccidentRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("render report: nil record")
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, rec); err != nil {
		return "", fmt.Errorf("render report %s: %w", rec.ID, err)
	}
	return buf.String(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

// formatAmount prints minor units with two decimal places.
func formatAmount(a domain.Amount) string {
	return decimal.New(int64(a), -2).StringFixed(2)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
