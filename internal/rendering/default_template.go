package rendering

import (
	"archive/zip"
	"bytes"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

// defaultDocumentXML is a text/template over WordprocessingML. Values go
// through "xml" and bullet runs through "runs".
const defaultDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:b/><w:sz w:val="32"/></w:rPr><w:t xml:space="preserve">{{xml .Title}}</w:t></w:r></w:p>
{{- if .Summary}}
{{template "heading" "Summary"}}
<w:p><w:r><w:t xml:space="preserve">{{xml .Summary}}</w:t></w:r></w:p>
{{- end}}
{{- if .Skills}}
{{template "heading" "Technical Skills"}}
{{- range .Skills}}
<w:p><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">{{xml .Group}}: </w:t></w:r><w:r><w:t xml:space="preserve">{{xml .Keywords}}</w:t></w:r></w:p>
{{- end}}
{{- end}}
{{template "heading" "Experience"}}
<w:p><w:r><w:rPr><w:b/><w:i/></w:rPr><w:t xml:space="preserve">{{xml .LastJob}}</w:t></w:r></w:p>
{{- range .Bullets1}}{{template "bullet" .}}{{end}}
<w:p/>
{{- range .Bullets2}}{{template "bullet" .}}{{end}}
<w:p/>
{{- range .Bullets3}}{{template "bullet" .}}{{end}}
<w:sectPr/></w:body></w:document>
{{- define "heading"}}<w:p><w:pPr><w:spacing w:before="240"/></w:pPr><w:r><w:rPr><w:b/><w:caps/></w:rPr><w:t xml:space="preserve">{{.}}</w:t></w:r></w:p>{{end}}
{{- define "bullet"}}
<w:p><w:pPr><w:ind w:left="360" w:hanging="360"/></w:pPr><w:r><w:t xml:space="preserve">• </w:t></w:r>{{runs .Runs}}</w:p>
{{- end}}`

// DefaultTemplate builds the built-in single-part DOCX template.
func DefaultTemplate() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{documentPart, defaultDocumentXML},
	}
	for _, part := range parts {
		f, err := w.Create(part.name)
		if err != nil {
			return nil, &TemplateError{Message: "failed to build default template", Cause: err}
		}
		if _, err := f.Write([]byte(part.content)); err != nil {
			return nil, &TemplateError{Message: "failed to build default template", Cause: err}
		}
	}
	if err := w.Close(); err != nil {
		return nil, &TemplateError{Message: "failed to build default template", Cause: err}
	}
	return buf.Bytes(), nil
}
