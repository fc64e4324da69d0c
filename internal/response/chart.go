package response

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	KindPlain      Kind = "plain"
	KindChart      Kind = "chart"
	KindChartError Kind = "chart_error"
)

// Chart validation messages shown to the user.
const (
	MsgInvalidJSON      = "Error: Invalid JSON format received from the model."
	MsgIncompleteChart  = "Error: Incomplete chart data provided in JSON."
	MsgUnsupportedChart = "Error: Unsupported chart type '%s'."
	MsgAxesMismatch     = "Error: Chart axes must have the same number of values."
	MsgNonNumericValues = "Error: Chart values must be numeric."
)

var chartTypes = map[string]bool{"bar": true, "line": true, "pie": true}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// Response is the classified shape of a model answer. It is one of
// PlainAnswer, ChartAnswer or ChartError.
type Response interface {
	Kind() Kind
	sealed()
}

type PlainAnswer struct {
	Text string
}

type ChartAnswer struct {
	Spec ChartSpec
	// JSON is the chart object as the model wrote it, without any fence.
	JSON string
}

type ChartError struct {
	Message string
	Raw     string
}

func (PlainAnswer) Kind() Kind { return KindPlain }
func (ChartAnswer) Kind() Kind { return KindChart }
func (ChartError) Kind() Kind  { return KindChartError }

func (PlainAnswer) sealed() {}
func (ChartAnswer) sealed() {}
func (ChartError) sealed()  {}

type ChartSpec struct {
	ChartType string `json:"chart_type"`
	Title     string `json:"title"`
	XAxis     XAxis  `json:"x_axis"`
	YAxis     YAxis  `json:"y_axis"`
}

type XAxis struct {
	Label string   `json:"label"`
	Data  []string `json:"data"`
}

type YAxis struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Classify decides whether raw model output is a chart specification. A
// ```json fenced object, or output that is itself a JSON object, is parsed
// and validated as a chart; anything else is a plain answer.
func Classify(raw string) Response {
	candidate, ok := chartCandidate(raw)
	if !ok {
		return PlainAnswer{Text: raw}
	}
	spec, msg := parseChart(candidate)
	if msg != "" {
		return ChartError{Message: msg, Raw: candidate}
	}
	return ChartAnswer{Spec: spec, JSON: candidate}
}

func chartCandidate(raw string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, true
	}
	return "", false
}

func parseChart(candidate string) (ChartSpec, string) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return ChartSpec{}, MsgInvalidJSON
	}

	chartType, _ := doc["chart_type"].(string)
	xAxis, _ := doc["x_axis"].(map[string]any)
	yAxis, _ := doc["y_axis"].(map[string]any)
	xData, _ := xAxis["data"].([]any)
	yData, _ := yAxis["data"].([]any)
	if chartType == "" || len(xData) == 0 || len(yData) == 0 {
		return ChartSpec{}, MsgIncompleteChart
	}
	if !chartTypes[chartType] {
		return ChartSpec{}, fmt.Sprintf(MsgUnsupportedChart, chartType)
	}

	labels := make([]string, len(xData))
	for i, v := range xData {
		switch t := v.(type) {
		case string:
			labels[i] = t
		case json.Number:
			labels[i] = t.String()
		default:
			labels[i] = fmt.Sprint(t)
		}
	}
	values := make([]float64, len(yData))
	for i, v := range yData {
		f, ok := number(v)
		if !ok {
			return ChartSpec{}, MsgNonNumericValues
		}
		values[i] = f
	}
	if len(labels) != len(values) {
		return ChartSpec{}, MsgAxesMismatch
	}

	return ChartSpec{
		ChartType: chartType,
		Title:     stringOr(doc["title"], "Chart"),
		XAxis:     XAxis{Label: stringOr(xAxis["label"], "X-Axis"), Data: labels},
		YAxis:     YAxis{Label: stringOr(yAxis["label"], "Y-Axis"), Data: values},
	}, ""
}

// number accepts JSON numbers and numeric strings. NaN and infinities are
// rejected since the chart has to be sent back out as JSON.
func number(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
