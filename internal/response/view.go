package response

import (
	"github.com/rs/zerolog/log"

	"analyst-rag/internal/models"
)

// View is a classified answer ready for any front end.
type View struct {
	Kind         Kind                `json:"kind"`
	Answer       string              `json:"answer"`
	AnswerHTML   string              `json:"answer_html,omitempty"`
	Chart        *ChartSpec          `json:"chart,omitempty"`
	ChartJSON    string              `json:"chart_json,omitempty"`
	ChartError   string              `json:"chart_error,omitempty"`
	Sources      []map[string]string `json:"sources"`
	NextSteps    []string            `json:"next_steps"`
	NextStepsRaw string              `json:"next_steps_raw"`
}

func NewView(ans *models.Answer) View {
	v := View{
		Answer:       ans.Text,
		Sources:      ans.Sources,
		NextSteps:    ParseNextSteps(ans.NextSteps),
		NextStepsRaw: ans.NextSteps,
	}
	if v.Sources == nil {
		v.Sources = []map[string]string{}
	}
	if v.NextSteps == nil {
		v.NextSteps = []string{}
	}

	switch r := Classify(ans.Text).(type) {
	case ChartAnswer:
		v.Kind = KindChart
		spec := r.Spec
		v.Chart = &spec
		v.ChartJSON = r.JSON
	case ChartError:
		v.Kind = KindChartError
		v.ChartError = r.Message
	case PlainAnswer:
		v.Kind = KindPlain
		html, err := RenderHTML(r.Text)
		if err != nil {
			log.Warn().Err(err).Msg("Error rendering answer")
		}
		v.AnswerHTML = html
	}
	return v
}
