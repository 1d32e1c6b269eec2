package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"sync"

	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/samber/do"
)

//go:embed assets/result.html
var resultTmpl string

// DownloadName is the file name offered by the download link.
const DownloadName = "generated.png"

type Params struct {
	Source string
	Prompt string
	Image  string
	Error  string
}

type view struct {
	Params
	ImageURL     template.URL
	DownloadName string
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

// Template renders the request form, and the result or failure when there is one. Image is
// either a data URI or an http(s) URL produced by the synthesizer, so it is trusted as a URL.
func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("result").Parse(resultTmpl))
	})

	log := log.FromContextOrDiscard(ctx).WithGroup("templator")
	log.Info("generating page", "has_image", params.Image != "")

	var data bytes.Buffer
	err := g.tmpl.Execute(&data, view{
		Params:       params,
		ImageURL:     template.URL(params.Image),
		DownloadName: DownloadName,
	})
	if err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
