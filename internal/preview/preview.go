// Package preview renders the shareable 1200x630 summary card: repository
// name plus active/total fork counts, in the app's purple-and-black style.
//
// Render is a pure function of its three inputs — no state, no I/O — which
// is what lets the /api/og endpoint be cached by anything in front of it.
//
// Text is drawn with x/image's fixed 7x13 bitmap face, scaled up with
// nearest-neighbor blocks. At poster sizes the chunky pixels read as a
// deliberate style, and it keeps the binary free of TTF parsing.
package preview

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	Width  = 1200
	Height = 630

	frameThickness = 20
)

var (
	background = color.RGBA{R: 0xFD, G: 0xF4, B: 0xFF, A: 0xFF} // pale purple
	black      = color.RGBA{A: 0xFF}
	white      = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	gray       = color.RGBA{R: 0x4B, G: 0x55, B: 0x63, A: 0xFF}
	activeFill = color.RGBA{R: 0xDC, G: 0xFC, B: 0xE7, A: 0xFF} // pale green
	activeText = color.RGBA{R: 0x16, G: 0x65, B: 0x34, A: 0xFF} // dark green
)

// Render produces the preview card for repo ("owner/name") with the given
// active and total fork counts.
func Render(repo string, active, total int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))

	fillRect(img, img.Bounds(), background)
	drawFrame(img, img.Bounds(), frameThickness, black)

	// Header and repository name, centered.
	drawTextCentered(img, "ForkLens", Width/2, 80, 8, black)
	drawTextCentered(img, "Repository Analysis", Width/2, 200, 3, gray)
	drawTextCentered(img, fitRepo(repo), Width/2, 260, 6, black)

	// Stat boxes: active (green) on the left, total (white) on the right.
	const (
		boxW, boxH = 320, 170
		boxGap     = 40
		boxTop     = 390
	)
	leftBox := image.Rect(Width/2-boxGap/2-boxW, boxTop, Width/2-boxGap/2, boxTop+boxH)
	rightBox := image.Rect(Width/2+boxGap/2, boxTop, Width/2+boxGap/2+boxW, boxTop+boxH)

	drawStatBox(img, leftBox, strconv.Itoa(active), "ACTIVE FORKS", activeFill, activeText)
	drawStatBox(img, rightBox, strconv.Itoa(total), "TOTAL FORKS", white, black)

	return img
}

// fitRepo truncates overly long repository names so they stay inside the
// frame at the title scale.
func fitRepo(repo string) string {
	const maxChars = 26 // 26 chars * 7px * scale 6 ≈ 1090px
	if len(repo) <= maxChars {
		return repo
	}
	return repo[:maxChars-3] + "..."
}

func drawStatBox(img *image.RGBA, box image.Rectangle, value, label string, fill, text color.RGBA) {
	fillRect(img, box, fill)
	drawFrame(img, box, 4, black)

	cx := (box.Min.X + box.Max.X) / 2
	drawTextCentered(img, value, cx, box.Min.Y+30, 6, text)
	drawTextCentered(img, label, cx, box.Max.Y-50, 2, text)
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// drawFrame draws a border of the given thickness just inside r.
func drawFrame(img *image.RGBA, r image.Rectangle, thickness int, c color.RGBA) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// drawTextCentered renders s with its horizontal center at cx and its top at
// y, scaled up from the 7x13 base face by the integer scale factor.
func drawTextCentered(img *image.RGBA, s string, cx, y, scale int, c color.RGBA) {
	face := basicfont.Face7x13

	w := font.MeasureString(face, s).Ceil()
	h := face.Height

	// Render at 1x into a scratch image, then blow each set pixel up into a
	// scale x scale block.
	scratch := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  scratch,
		Src:  &image.Uniform{C: c},
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	x0 := cx - (w*scale)/2
	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			if _, _, _, a := scratch.At(sx, sy).RGBA(); a == 0 {
				continue
			}
			block := image.Rect(
				x0+sx*scale,
				y+sy*scale,
				x0+(sx+1)*scale,
				y+(sy+1)*scale,
			)
			fillRect(img, block, c)
		}
	}
}
