package export

import (
	"bytes"
	"html/template"
	"time"
)

var permitTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t *time.Time) string {
			if t == nil {
				return "—"
			}
			return t.Format("January 2, 2006")
		},
	}
	permitTemplate = template.Must(template.New("permit").Funcs(funcMap).Parse(permitHTML))
}

// PermitData holds data for permit template rendering
type PermitData struct {
	PermitID             string
	Status               string
	UnitID               string
	RequestedBy          string
	ContractorName       string
	ContractorContact    string
	ContractorCompany    string
	WorkDescription      string
	ProposedStartDate    *time.Time
	EstimatedDuration    string
	SpecificInstructions string
	EntryRequirements    string
	PermitConditions     string
	ApprovedBy           string
	ApprovalDate         *time.Time
	GeneratedAt          time.Time
}

// RenderPermitHTML renders a work order permit into printable HTML.
func RenderPermitHTML(data PermitData) (string, error) {
	var buf bytes.Buffer
	if err := permitTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const permitHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Work Order Permit {{.PermitID}}</title>
<style>
    body { font-family: Georgia, 'Times New Roman', serif; color: #1a1a1a; max-width: 700px; margin: 0 auto; }
    .banner { text-align: center; border-bottom: 3px double #1a1a1a; padding-bottom: 12px; margin-bottom: 24px; }
    .banner h1 { margin: 0; font-size: 26px; letter-spacing: 2px; }
    .banner .permit-id { font-family: monospace; font-size: 13px; color: #555; margin-top: 6px; }
    .status { display: inline-block; padding: 4px 16px; border: 2px solid #1a1a1a; font-weight: bold; text-transform: uppercase; letter-spacing: 1px; margin-top: 8px; }
    table { width: 100%; border-collapse: collapse; margin: 16px 0; }
    th { text-align: left; width: 200px; padding: 8px 12px; background: #f2f2f2; border: 1px solid #ccc; vertical-align: top; font-size: 13px; text-transform: uppercase; letter-spacing: 0.5px; }
    td { padding: 8px 12px; border: 1px solid #ccc; vertical-align: top; }
    .section-title { font-size: 15px; margin: 24px 0 4px; border-bottom: 1px solid #999; padding-bottom: 2px; }
    .conditions { background: #fffbe6; border: 1px solid #e0d48a; padding: 12px; margin: 12px 0; }
    .footer { margin-top: 36px; font-size: 11px; color: #666; border-top: 1px solid #ccc; padding-top: 8px; }
    .signature { margin-top: 32px; display: flex; justify-content: space-between; }
    .signature div { width: 45%; border-top: 1px solid #1a1a1a; padding-top: 4px; font-size: 12px; text-align: center; }
</style>
</head>
<body>
    <div class="banner">
        <h1>WORK ORDER PERMIT</h1>
        <div class="permit-id">{{.PermitID}}</div>
        <div class="status">{{.Status}}</div>
    </div>

    <div class="section-title">Contractor</div>
    <table>
        <tr><th>Name</th><td>{{.ContractorName}}</td></tr>
        <tr><th>Contact</th><td>{{.ContractorContact}}</td></tr>
        {{if .ContractorCompany}}<tr><th>Company</th><td>{{.ContractorCompany}}</td></tr>{{end}}
    </table>

    <div class="section-title">Authorized Work</div>
    <table>
        <tr><th>Unit</th><td>{{.UnitID}}</td></tr>
        <tr><th>Requested By</th><td>{{.RequestedBy}}</td></tr>
        <tr><th>Description</th><td>{{.WorkDescription}}</td></tr>
        <tr><th>Proposed Start</th><td>{{formatDate .ProposedStartDate}}</td></tr>
        <tr><th>Estimated Duration</th><td>{{.EstimatedDuration}}</td></tr>
        {{if .SpecificInstructions}}<tr><th>Instructions</th><td>{{.SpecificInstructions}}</td></tr>{{end}}
        {{if .EntryRequirements}}<tr><th>Entry Requirements</th><td>{{.EntryRequirements}}</td></tr>{{end}}
    </table>

    {{if .PermitConditions}}
    <div class="section-title">Permit Conditions</div>
    <div class="conditions">{{.PermitConditions}}</div>
    {{end}}

    {{if .ApprovedBy}}
    <div class="section-title">Approval</div>
    <table>
        <tr><th>Approved By</th><td>{{.ApprovedBy}}</td></tr>
        <tr><th>Approval Date</th><td>{{formatDate .ApprovalDate}}</td></tr>
    </table>
    {{end}}

    <div class="signature">
        <div>Building Administrator</div>
        <div>Contractor Representative</div>
    </div>

    <div class="footer">
        Generated {{.GeneratedAt.Format "January 2, 2006 15:04 MST"}}. This permit must be presented on entry and posted at the work site for its duration.
    </div>
</body>
</html>`
