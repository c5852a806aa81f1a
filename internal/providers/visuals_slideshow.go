package providers

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/auralabs/aura/internal/models"
)

// slideshowPalette cycles across scenes so consecutive frames are
// visually distinct.
var slideshowPalette = []color.RGBA{
	{R: 0x1f, G: 0x29, B: 0x37, A: 0xff},
	{R: 0x31, G: 0x41, B: 0x55, A: 0xff},
	{R: 0x0f, G: 0x3d, B: 0x3e, A: 0xff},
	{R: 0x3b, G: 0x2f, B: 0x4f, A: 0xff},
	{R: 0x41, G: 0x29, B: 0x29, A: 0xff},
}

// slideshowResolutions maps aspect ratios onto frame sizes.
var slideshowResolutions = map[models.AspectRatio][2]int{
	models.AspectLandscape: {1280, 720},
	models.AspectPortrait:  {720, 1280},
	models.AspectSquare:    {1024, 1024},
	models.AspectClassic:   {1024, 768},
}

// SlideshowVisuals is the terminal visuals fallback: solid-colour frames
// with the scene title printed on them. Always available, fully local.
type SlideshowVisuals struct{}

// NewSlideshowVisuals creates the fallback visuals provider.
func NewSlideshowVisuals() *SlideshowVisuals { return &SlideshowVisuals{} }

func (p *SlideshowVisuals) Name() string                     { return NameSlideshow }
func (p *SlideshowVisuals) Available(_ context.Context) bool { return true }
func (p *SlideshowVisuals) RequiresNetwork() bool            { return false }

// GenerateImages writes count solid frames into outDir and returns their
// paths in scene order.
func (p *SlideshowVisuals) GenerateImages(ctx context.Context, prompt string, aspect models.AspectRatio, count int, outDir string) ([]string, error) {
	if count < 1 {
		count = 1
	}

	size, ok := slideshowResolutions[aspect]
	if !ok {
		size = slideshowResolutions[models.AspectLandscape]
	}

	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(outDir, fmt.Sprintf("scene-%02d.png", i+1))
		label := fmt.Sprintf("%s (%d/%d)", prompt, i+1, count)
		if err := writeSlide(path, size[0], size[1], slideshowPalette[i%len(slideshowPalette)], label); err != nil {
			return nil, models.NewStageError(models.ErrCodeDiskSpace, "writing slideshow frame", err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func writeSlide(path string, width, height int, bg color.RGBA, label string) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	x := (width - textWidth) / 2
	if x < 8 {
		x = 8
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, height/2),
	}
	drawer.DrawString(label)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return err
	}
	return f.Sync()
}
