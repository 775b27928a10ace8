package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var specSheetTemplate = template.Must(
	template.New("spec_sheet.html").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}).ParseFS(templateFS, "templates/spec_sheet.html"),
)

// RenderSpecSheetHTML renders the spec sheet template with provided data
func RenderSpecSheetHTML(data SpecSheet) (string, error) {
	var buf bytes.Buffer
	if err := specSheetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
