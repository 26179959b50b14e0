package rendering

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jonathan/quick-resume/internal/types"
)

// documentPart is the zip entry holding the main WordprocessingML body.
const documentPart = "word/document.xml"

// Extension is the file extension of rendered documents.
const Extension = ".docx"

// TemplateData is the binding passed to the word/document.xml template.
type TemplateData struct {
	Title    string
	LastJob  string
	Summary  string
	Skills   []SkillLine
	Bullets1 []types.StyledBullet
	Bullets2 []types.StyledBullet
	Bullets3 []types.StyledBullet
}

// SkillLine is one rendered skills row, keywords already joined.
type SkillLine struct {
	Group    string
	Keywords string
}

// DOCXRenderer renders generated documents into a DOCX template. An empty
// TemplatePath uses the built-in template.
type DOCXRenderer struct {
	TemplatePath string
}

// Extension returns the file extension for rendered artifacts.
func (r *DOCXRenderer) Extension() string {
	return Extension
}

// Render binds doc into the template and returns the DOCX bytes.
func (r *DOCXRenderer) Render(doc *types.GeneratedDocument) ([]byte, error) {
	if doc == nil {
		return nil, &RenderError{Message: "document is nil"}
	}
	templateBytes, err := r.loadTemplate()
	if err != nil {
		return nil, err
	}
	return RenderDOCX(templateBytes, BuildTemplateData(doc))
}

func (r *DOCXRenderer) loadTemplate() ([]byte, error) {
	if r.TemplatePath == "" {
		return DefaultTemplate()
	}
	content, err := os.ReadFile(filepath.Clean(r.TemplatePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &TemplateError{
				Message: fmt.Sprintf("template file not found: %s", r.TemplatePath),
				Cause:   err,
			}
		}
		return nil, &TemplateError{
			Message: fmt.Sprintf("failed to read template file: %s", r.TemplatePath),
			Cause:   err,
		}
	}
	return content, nil
}

// BuildTemplateData maps a generated document onto template fields. The
// summary loses every asterisk, skill keywords lose bold markers, and
// experience bullets are parsed into styled runs.
func BuildTemplateData(doc *types.GeneratedDocument) *TemplateData {
	skills := make([]SkillLine, 0, len(doc.SkillGroups))
	for _, group := range doc.SkillGroups {
		skills = append(skills, SkillLine{
			Group:    group.GroupName,
			Keywords: StripMarkers(strings.Join(group.Keywords, ", ")),
		})
	}

	return &TemplateData{
		Title:    doc.DeveloperTitle,
		LastJob:  doc.RoleTitle,
		Summary:  StripEmphasis(doc.Summary),
		Skills:   skills,
		Bullets1: ParseBullets(doc.ExperienceFirst),
		Bullets2: ParseBullets(doc.ExperienceSecond),
		Bullets3: ParseBullets(doc.ExperienceThird),
	}
}

// RenderDOCX executes the document part of a DOCX template archive and
// copies every other part unchanged.
func RenderDOCX(templateBytes []byte, data *TemplateData) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(templateBytes), int64(len(templateBytes)))
	if err != nil {
		return nil, &TemplateError{Message: "template is not a DOCX archive", Cause: err}
	}

	var output bytes.Buffer
	writer := zip.NewWriter(&output)

	found := false
	for _, file := range reader.File {
		content, err := readZipFile(file)
		if err != nil {
			return nil, &RenderError{Message: fmt.Sprintf("failed to read %s", file.Name), Cause: err}
		}
		if file.Name == documentPart {
			found = true
			content, err = executeDocumentTemplate(content, data)
			if err != nil {
				return nil, err
			}
		}
		if err := writeZipFile(writer, file, content); err != nil {
			return nil, &RenderError{Message: fmt.Sprintf("failed to write %s", file.Name), Cause: err}
		}
	}

	if !found {
		return nil, &TemplateError{Message: "template has no " + documentPart}
	}
	if err := writer.Close(); err != nil {
		return nil, &RenderError{Message: "failed to finalize archive", Cause: err}
	}
	return output.Bytes(), nil
}

func executeDocumentTemplate(content []byte, data *TemplateData) ([]byte, error) {
	tmpl, err := template.New("document").Funcs(template.FuncMap{
		"xml":  EscapeXML,
		"runs": RunsXML,
	}).Parse(string(content))
	if err != nil {
		return nil, &TemplateError{Message: "failed to parse document template", Cause: err}
	}

	var result bytes.Buffer
	if err := tmpl.Execute(&result, data); err != nil {
		return nil, &TemplateError{Message: "failed to execute document template", Cause: err}
	}
	return result.Bytes(), nil
}

// RunsXML renders styled runs as WordprocessingML <w:r> elements.
func RunsXML(runs []types.StyledRun) string {
	var sb strings.Builder
	for _, run := range runs {
		if run.Text == "" {
			continue
		}
		sb.WriteString("<w:r>")
		if run.Bold {
			sb.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		sb.WriteString(`<w:t xml:space="preserve">`)
		sb.WriteString(EscapeXML(run.Text))
		sb.WriteString("</w:t></w:r>")
	}
	return sb.String()
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func writeZipFile(writer *zip.Writer, file *zip.File, content []byte) error {
	w, err := writer.CreateHeader(&zip.FileHeader{
		Name:     file.Name,
		Method:   zip.Deflate,
		Modified: file.Modified,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
