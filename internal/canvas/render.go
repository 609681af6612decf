package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/skysketch/editor-backend/internal/domain"
)

// ExportPNG rasterizes the surface at the given pixel scale. The
// boundary decoration and export-excluded objects are never drawn.
func (s *Surface) ExportPNG(scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	w := int(s.width * scale)
	h := int(s.height * scale)
	dc := gg.NewContext(w, h)
	dc.Scale(scale, scale)

	bg, err := ParseHexColor(s.Background())
	if err != nil {
		bg = color.White
	}
	dc.SetColor(bg)
	dc.Clear()

	for _, o := range s.Objects() {
		if o.ExcludeFromExport || o.Name == domain.BoundaryName || !o.Visible {
			continue
		}
		drawObject(dc, o)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail renders the surface and downsamples it to fit within
// maxW x maxH, preserving aspect ratio.
func (s *Surface) Thumbnail(maxW, maxH int) ([]byte, error) {
	full, err := s.ExportPNG(1)
	if err != nil {
		return nil, err
	}
	src, err := png.Decode(bytes.NewReader(full))
	if err != nil {
		return nil, fmt.Errorf("decode render: %w", err)
	}
	sb := src.Bounds()
	sx := float64(maxW) / float64(sb.Dx())
	sy := float64(maxH) / float64(sb.Dy())
	k := sx
	if sy < k {
		k = sy
	}
	if k > 1 {
		k = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(sb.Dx())*k), int(float64(sb.Dy())*k)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportDrawnOnly rasterizes only hand-drawn content: images and
// converted dots are hidden. Used to produce the conversion input.
func (s *Surface) ExportDrawnOnly(scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	w := int(s.width * scale)
	h := int(s.height * scale)
	dc := gg.NewContext(w, h)
	dc.Scale(scale, scale)
	dc.SetColor(color.White)
	dc.Clear()

	for _, o := range s.Objects() {
		if o.ExcludeFromExport || o.Name == domain.BoundaryName || !o.Visible {
			continue
		}
		if o.Type == domain.ObjectImage {
			continue
		}
		if o.Type == domain.ObjectDot && o.Origin == domain.OriginConverted {
			continue
		}
		drawObject(dc, o)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportSVGDots emits every dot as an SVG circle. This is the payload
// format the conversion service accepts for already-discrete content.
func (s *Surface) ExportSVGDots() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%g" height="%g" viewBox="0 0 %g %g">`,
		s.width, s.height, s.width, s.height)
	buf.WriteByte('\n')
	for _, o := range s.Objects() {
		if o.Type != domain.ObjectDot || !o.Visible {
			continue
		}
		fill := o.Fill
		if fill == "" {
			fill = "#000000"
		}
		fmt.Fprintf(&buf, `  <circle cx="%g" cy="%g" r="%g" fill="%s"/>`, o.CX, o.CY, o.Radius, fill)
		buf.WriteByte('\n')
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func drawObject(dc *gg.Context, o *domain.Object) {
	switch o.Type {
	case domain.ObjectDot:
		c, err := ParseHexColor(o.Fill)
		if err != nil {
			c = color.Black
		}
		dc.SetColor(c)
		dc.DrawCircle(o.CX, o.CY, o.Radius)
		dc.Fill()
	case domain.ObjectImage:
		if o.Img == nil {
			return
		}
		dc.Push()
		if o.Angle != 0 {
			b := o.Bounds()
			dc.RotateAbout(gg.Radians(o.Angle), b.Left+b.Width/2, b.Top+b.Height/2)
		}
		dc.Translate(o.Left, o.Top)
		dc.Scale(o.ScaleX, o.ScaleY)
		dc.DrawImage(o.Img, 0, 0)
		dc.Pop()
	case domain.ObjectPath:
		if len(o.Points) == 0 {
			return
		}
		c, err := ParseHexColor(o.Stroke)
		if err != nil {
			c = color.Black
		}
		dc.SetColor(c)
		dc.SetLineWidth(o.StrokeWidth)
		dc.SetLineCapRound()
		dc.SetLineJoinRound()
		dc.MoveTo(o.Points[0].X, o.Points[0].Y)
		for _, p := range o.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.Stroke()
	}
}

// ParseHexColor parses #rgb and #rrggbb notation.
func ParseHexColor(s string) (color.Color, error) {
	if len(s) == 0 || s[0] != '#' {
		return nil, fmt.Errorf("not a hex color: %q", s)
	}
	hex := s[1:]
	var r, g, b uint8
	switch len(hex) {
	case 3:
		_, err := fmt.Sscanf(hex, "%1x%1x%1x", &r, &g, &b)
		if err != nil {
			return nil, fmt.Errorf("not a hex color: %q", s)
		}
		r *= 17
		g *= 17
		b *= 17
	case 6:
		_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
		if err != nil {
			return nil, fmt.Errorf("not a hex color: %q", s)
		}
	default:
		return nil, fmt.Errorf("not a hex color: %q", s)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
