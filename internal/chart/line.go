// Package chart renders the daily revenue series as a standalone SVG
// line chart, suitable for serving directly as image/svg+xml.
package chart

import (
	"fmt"
	"html/template"
	"strings"

	"panaderia/backend/internal/domain"
)

const (
	width   = 720
	height  = 260
	padding = 36.0
	ticks   = 5
)

// RevenueLine draws one point per closed day, y axis in whole currency
// units. An empty series renders an annotated empty frame rather than
// failing, since a fresh install has no closings yet.
func RevenueLine(points []domain.RevenuePoint, title string) []byte {
	if title == "" {
		title = "Daily revenue"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img">`, width, height)
	fmt.Fprintf(&b, `<title>%s</title>`, template.HTMLEscapeString(title))

	chartW := float64(width) - 2*padding
	chartH := float64(height) - 2*padding

	if len(points) == 0 {
		fmt.Fprintf(&b, `<text x="%.0f" y="%.0f" font-size="14" fill="#475569" text-anchor="middle">no closings in range</text>`,
			float64(width)/2, float64(height)/2)
		b.WriteString(`</svg>`)
		return []byte(b.String())
	}

	maxVal := 0.0
	for _, pt := range points {
		if v := float64(pt.RevenueCents) / 100; v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}
	scale := chartH / maxVal

	step := 0.0
	if len(points) > 1 {
		step = chartW / float64(len(points)-1)
	}

	xAt := func(i int) float64 {
		if len(points) == 1 {
			return padding + chartW/2
		}
		return padding + float64(i)*step
	}
	yAt := func(pt domain.RevenuePoint) float64 {
		return padding + chartH - float64(pt.RevenueCents)/100*scale
	}

	// Horizontal grid with tick labels.
	for i := 0; i <= ticks; i++ {
		ratio := float64(i) / float64(ticks)
		y := padding + chartH - ratio*chartH
		fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#cbd5e1" stroke-width="0.5" stroke-dasharray="2,4"></line>`,
			padding, y, padding+chartW, y)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" font-size="10" fill="#475569" text-anchor="end">%.0f</text>`,
			padding-6, y+4, maxVal*ratio)
	}

	fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#475569" stroke-width="1"></line>`,
		padding, padding, padding, padding+chartH)
	fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#475569" stroke-width="1"></line>`,
		padding, padding+chartH, padding+chartW, padding+chartH)

	var path strings.Builder
	for i, pt := range points {
		verb := " L"
		if i == 0 {
			verb = "M"
		}
		fmt.Fprintf(&path, "%s%.2f %.2f", verb, xAt(i), yAt(pt))
	}

	base := padding + chartH
	fmt.Fprintf(&b, `<path d="%s L%.2f %.2f L%.2f %.2f Z" fill="rgba(180,83,9,0.12)" stroke="none"></path>`,
		path.String(), xAt(len(points)-1), base, xAt(0), base)
	fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="#b45309" stroke-width="2" stroke-linejoin="round" stroke-linecap="round"></path>`,
		path.String())

	for i, pt := range points {
		fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="3" fill="#b45309"></circle>`, xAt(i), yAt(pt))
	}

	// Label first, middle and last dates to keep the axis readable for
	// long windows.
	labelIdx := map[int]bool{0: true, len(points) - 1: true, len(points) / 2: true}
	for i := range points {
		if !labelIdx[i] {
			continue
		}
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" font-size="10" fill="#475569" text-anchor="middle">%s</text>`,
			xAt(i), padding+chartH+16, points[i].Date.Format("01-02"))
	}

	b.WriteString(`</svg>`)
	return []byte(b.String())
}
