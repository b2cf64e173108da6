// Package visualization renders cancellation probability series as text and
// HTML charts and serves them over a local HTTP server.
package visualization

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"

	"github.com/nvandessel/flightbreak/internal/calendar"
)

// SVG layout, in pixels.
const (
	svgWidth     = 760
	svgHeight    = 360
	marginLeft   = 48
	marginRight  = 16
	marginTop    = 16
	marginBottom = 80
	barGap       = 2
	maxDateLabel = 26
)

// RenderBars writes a fixed-width text bar chart, one row per week. A
// probability of 1 fills width characters.
func RenderBars(w io.Writer, points []calendar.Point, width int) error {
	if width < 1 {
		return fmt.Errorf("chart width must be at least 1, got %d", width)
	}

	var b strings.Builder
	b.WriteString("week  date        probability\n")
	for _, p := range points {
		n := int(math.Round(clamp(p.Probability) * float64(width)))
		fmt.Fprintf(&b, "%4d  %s  %.4f  |%s\n",
			p.Week, calendar.Format(p.Date), p.Probability, strings.Repeat("#", n))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// FormValues pre-fills the estimate form on the HTML page.
type FormValues struct {
	Small       float64
	Big         float64
	Weeks       int
	MinWeeks    int
	Simulations int
	First       string
}

type chartBar struct {
	X, Y, Width, Height float64
	LabelX              float64
	ShowLabel           bool
	Date                string
	Probability         string
}

type chartTick struct {
	Y     float64
	Label string
}

// chartPage holds data passed to the HTML template.
type chartPage struct {
	Title      string
	Error      string
	Width      int
	Height     int
	Left       float64
	Right      float64
	Top        float64
	Bottom     float64
	TickLabelX float64
	DateLabelY float64
	Bars       []chartBar
	Ticks      []chartTick
	Form       *FormValues
}

// RenderHTML writes a standalone HTML page with an SVG bar chart. The y axis
// is fixed to [0, 1].
func RenderHTML(w io.Writer, title string, points []calendar.Point) error {
	return renderPage(w, newChartPage(title, points, nil, ""))
}

func newChartPage(title string, points []calendar.Point, form *FormValues, errMsg string) chartPage {
	page := chartPage{
		Title:      title,
		Error:      errMsg,
		Width:      svgWidth,
		Height:     svgHeight,
		Left:       marginLeft,
		Right:      svgWidth - marginRight,
		Top:        marginTop,
		Bottom:     svgHeight - marginBottom,
		TickLabelX: marginLeft - 6,
		DateLabelY: svgHeight - marginBottom + 14,
		Form:       form,
	}
	plotHeight := page.Bottom - page.Top

	for i := 0; i <= 4; i++ {
		v := float64(i) / 4
		page.Ticks = append(page.Ticks, chartTick{
			Y:     page.Bottom - v*plotHeight,
			Label: fmt.Sprintf("%.2f", v),
		})
	}

	if len(points) == 0 {
		return page
	}

	slot := (page.Right - page.Left) / float64(len(points))
	labelEvery := max(1, int(math.Ceil(float64(len(points))/maxDateLabel)))
	for i, p := range points {
		h := clamp(p.Probability) * plotHeight
		x := page.Left + float64(i)*slot
		page.Bars = append(page.Bars, chartBar{
			X:           round2(x + barGap/2),
			Y:           round2(page.Bottom - h),
			Width:       round2(max(slot-barGap, 1)),
			Height:      round2(h),
			LabelX:      round2(x + slot/2),
			ShowLabel:   i%labelEvery == 0,
			Date:        calendar.Format(p.Date),
			Probability: fmt.Sprintf("%.4f", p.Probability),
		})
	}
	return page
}

func renderPage(w io.Writer, page chartPage) error {
	tmplBytes, err := templates.ReadFile("templates/chart.html.tmpl")
	if err != nil {
		return fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("chart").Parse(string(tmplBytes))
	if err != nil {
		return fmt.Errorf("parse HTML template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return fmt.Errorf("execute HTML template: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func clamp(p float64) float64 {
	return min(max(p, 0), 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
